// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sdk

import (
	"sync"
)

// Embed tag attributes read by AutoInit
const (
	AttrAppID    = "data-app-id"
	AttrEndpoint = "data-endpoint"
)

var (
	defaultMu  sync.RWMutex
	defaultSDK *SDK
)

// SetDefault installs the process level instance used by embed snippets
func SetDefault(s *SDK) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultSDK = s
}

// Default returns the process level instance, or nil
func Default() *SDK {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultSDK
}

// AutoInit looks for the embed tag carrying data-app-id, initialises a new
// instance from it and installs it as the default. data-endpoint, when
// present, replaces the API base.
func AutoInit(host Host, opts ...Option) (*SDK, error) {
	tag := host.Document().QuerySelector("[" + AttrAppID + "]")
	if tag == nil {
		return nil, ErrMissingAppID
	}
	appID, _ := tag.Attr(AttrAppID)
	endpoint, _ := tag.Attr(AttrEndpoint)

	s := New(host, opts...)
	if err := s.Init(Config{AppID: appID, APIEndpoint: endpoint}); err != nil {
		return nil, err
	}
	SetDefault(s)
	return s, nil
}
