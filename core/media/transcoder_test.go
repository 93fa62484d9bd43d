package media

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AuraFM/model"
)

func flacPayload() *model.TrackPayload {
	return &model.TrackPayload{
		TrackID:  7,
		Title:    "Song",
		Format:   "flac",
		Filename: "Artist - Song.flac",
		Data:     []byte("flac-bytes"),
	}
}

func TestConvertIfNeededPassesThroughMatchingFormat(t *testing.T) {
	t.Parallel()

	tr := NewTranscoder("")
	payload := flacPayload()

	out, err := tr.ConvertIfNeeded(context.Background(), payload, "flac")
	require.NoError(t, err)
	assert.Same(t, payload, out, "matching format returns the payload untouched")

	out, err = tr.ConvertIfNeeded(context.Background(), payload, "FLAC")
	require.NoError(t, err)
	assert.Same(t, payload, out, "format comparison is case insensitive")
}

func TestConvertIfNeededPassesThroughEmptyTarget(t *testing.T) {
	t.Parallel()

	tr := NewTranscoder("")
	payload := flacPayload()

	out, err := tr.ConvertIfNeeded(context.Background(), payload, "")
	require.NoError(t, err)
	assert.Same(t, payload, out)
}

func TestConvertIfNeededSkipsLossyToLosslessUpgrade(t *testing.T) {
	t.Parallel()

	tr := NewTranscoder("")
	payload := flacPayload()
	payload.Format = "mp3"
	payload.Filename = "Artist - Song.mp3"

	out, err := tr.ConvertIfNeeded(context.Background(), payload, "flac")
	require.NoError(t, err)
	assert.Same(t, payload, out, "upgrading a lossy source would only inflate the file")
}

func TestConvertIfNeededRejectsUnknownTarget(t *testing.T) {
	t.Parallel()

	tr := NewTranscoder("")
	_, err := tr.ConvertIfNeeded(context.Background(), flacPayload(), "ogg")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported target format")
}

func TestReplaceExt(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		filename string
		target   string
		want     string
	}{
		{name: "simple swap", filename: "Artist - Song.flac", target: "mp3", want: "Artist - Song.mp3"},
		{name: "no extension", filename: "track-7", target: "mp3", want: "track-7.mp3"},
		{name: "dotted title", filename: "Vol. 2.flac", target: "mp3", want: "Vol. 2.mp3"},
		{name: "empty name stays empty", filename: "", target: "mp3", want: ""},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, replaceExt(tc.filename, tc.target))
		})
	}
}
