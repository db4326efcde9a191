// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ad

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		payload Payload
		want    Creative
		err     error
	}{
		{
			name:    "banner image",
			format:  FormatBanner,
			payload: Payload{ID: "a1", ImageURL: "https://x/y.png", Width: 728, Height: 90},
			want:    &Banner{ImageURL: "https://x/y.png", Size: Size{W: 728, H: 90}},
		},
		{
			name:    "banner empty",
			format:  FormatBanner,
			payload: Payload{ID: "a1", VideoURL: "https://x/v.mp4"},
			err:     ErrEmptyCreative,
		},
		{
			name:    "video",
			format:  FormatVideo,
			payload: Payload{ID: "v1", VideoURL: "https://x/v.mp4", PosterURL: "https://x/p.jpg"},
			want:    &Video{VideoURL: "https://x/v.mp4", PosterURL: "https://x/p.jpg"},
		},
		{
			name:    "native partial",
			format:  FormatNative,
			payload: Payload{ID: "n1", Title: "Fast VPN", CTA: "Install"},
			want:    &Native{Title: "Fast VPN", CTA: "Install"},
		},
		{
			name:    "native empty",
			format:  FormatNative,
			payload: Payload{ID: "n1", ClickURL: "https://z"},
			err:     ErrEmptyCreative,
		},
		{
			name:    "interstitial html",
			format:  FormatInterstitial,
			payload: Payload{ID: "i1", HTML: "<b>hi</b>"},
			want:    &Interstitial{HTML: "<b>hi</b>"},
		},
		{
			name:    "unknown",
			format:  Format("popunder"),
			payload: Payload{ID: "x", ImageURL: "https://x"},
			err:     ErrUnknownFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			got, err := Decode(tt.format, tt.payload)
			if tt.err != nil {
				require.ErrorIs(err, tt.err)
				return
			}
			require.NoError(err)
			require.Equal(tt.payload.ID, got.ID)
			require.Equal(tt.want, got.Creative)
			require.Equal(tt.format, got.Creative.Format())
		})
	}
}

func TestDecodeKeepsAdvertiser(t *testing.T) {
	require := require.New(t)
	got, err := Decode(FormatBanner, Payload{
		ID:         "a1",
		ImageURL:   "https://x/y.png",
		ClickURL:   "https://z",
		Advertiser: &Advertiser{Name: "Acme"},
	})
	require.NoError(err)
	require.Equal("https://z", got.ClickURL)
	require.Equal("Acme", got.Advertiser.Name)
}

func TestParseSize(t *testing.T) {
	require := require.New(t)

	s, err := ParseSize("300x250")
	require.NoError(err)
	require.Equal(Size{W: 300, H: 250}, s)
	require.Equal("300x250", s.String())

	for _, bad := range []string{"", "300", "0x50", "ax5"} {
		_, err := ParseSize(bad)
		require.ErrorIs(err, ErrInvalidSize, bad)
	}
}

func TestParseFormat(t *testing.T) {
	require := require.New(t)
	f, err := ParseFormat(" Video ")
	require.NoError(err)
	require.Equal(FormatVideo, f)

	_, err = ParseFormat("popunder")
	require.ErrorIs(err, ErrUnknownFormat)
}

func TestNewConfig(t *testing.T) {
	require := require.New(t)
	cfg := NewConfig(FormatBanner)
	require.Equal(DefaultBannerSize, cfg.Size)
	require.True(cfg.Muted)
	require.True(cfg.Dismissible)

	require.True(NewConfig(FormatVideo).Size.IsZero())
}
