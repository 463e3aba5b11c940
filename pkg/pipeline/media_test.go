package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AkaakuHub/twix-saver/pkg/models"
)

func photoEntity(url string, position float64) map[string]any {
	return map[string]any{
		"type":            "photo",
		"media_url_https": url,
		"indices":         []any{position, position + 20},
	}
}

func TestCollectCandidatesPrefersExtendedEntities(t *testing.T) {
	payload := map[string]any{
		"legacy": map[string]any{
			"entities": map[string]any{
				"media": []any{photoEntity("https://img.example/one.jpg", 10)},
			},
			"extended_entities": map[string]any{
				"media": []any{
					photoEntity("https://img.example/one.jpg", 10),
					photoEntity("https://img.example/two.jpg", 10),
				},
			},
		},
	}

	candidates := collectCandidates(payload)

	require.Len(t, candidates, 2, "extended set wins, basic set ignored")
	assert.Equal(t, models.MediaTypePhoto, candidates[0].Type)
	assert.Equal(t, models.OrderTypeAttachment, candidates[0].OrderType)
}

func TestCollectCandidatesSkipsVideos(t *testing.T) {
	payload := map[string]any{
		"legacy": map[string]any{
			"extended_entities": map[string]any{
				"media": []any{
					photoEntity("https://img.example/photo.jpg", 0),
					map[string]any{
						"type":            "video",
						"media_url_https": "https://img.example/thumb.jpg",
					},
				},
			},
		},
	}

	candidates := collectCandidates(payload)
	require.Len(t, candidates, 1)
	assert.Equal(t, "https://img.example/photo.jpg", candidates[0].URL)
}

func TestCollectCandidatesLinkedImages(t *testing.T) {
	payload := map[string]any{
		"legacy": map[string]any{
			"entities": map[string]any{
				"urls": []any{
					map[string]any{
						"expanded_url": "https://example.com/diagram.png?v=2",
						"indices":      []any{float64(5), float64(28)},
					},
					map[string]any{
						"expanded_url": "https://example.com/story",
						"indices":      []any{float64(30), float64(53)},
					},
				},
			},
		},
	}

	candidates := collectCandidates(payload)

	require.Len(t, candidates, 1, "plain links are not media")
	assert.Equal(t, models.MediaTypeLinkedImage, candidates[0].Type)
	assert.Equal(t, models.OrderTypeLink, candidates[0].OrderType)
	assert.Equal(t, 5, candidates[0].Position)
}

func TestCollectCandidatesDeduplicatesByURL(t *testing.T) {
	payload := map[string]any{
		"legacy": map[string]any{
			"extended_entities": map[string]any{
				"media": []any{
					photoEntity("https://img.example/same.jpg", 0),
					photoEntity("https://img.example/same.jpg", 10),
				},
			},
		},
	}

	candidates := collectCandidates(payload)
	assert.Len(t, candidates, 1)
}

func TestCollectCandidatesWithoutLegacy(t *testing.T) {
	assert.Empty(t, collectCandidates(map[string]any{"rest_id": "1"}))
}

func TestIsImageURL(t *testing.T) {
	assert.True(t, isImageURL("https://example.com/a.jpg"))
	assert.True(t, isImageURL("https://example.com/a.JPEG"))
	assert.True(t, isImageURL("https://example.com/a.webp?size=large"))
	assert.True(t, isImageURL("https://example.com/a.svg"))
	assert.False(t, isImageURL("https://example.com/article"))
	assert.False(t, isImageURL("https://example.com/a.mp4"))
}

func TestThrottlePacesDownloads(t *testing.T) {
	p := &MediaProcessor{minInterval: 20 * time.Millisecond}
	ctx := context.Background()

	start := time.Now()
	p.throttle(ctx) // first slot is immediate
	p.throttle(ctx)
	p.throttle(ctx)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond,
		"three downloads at 20ms spacing take at least two intervals")
}

func TestThrottleDisabledWithoutRate(t *testing.T) {
	p := &MediaProcessor{}

	start := time.Now()
	for i := 0; i < 100; i++ {
		p.throttle(context.Background())
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestMintMediaIDIsStable(t *testing.T) {
	a := mintMediaID("https://img.example/one.jpg")
	b := mintMediaID("https://img.example/one.jpg")
	c := mintMediaID("https://img.example/two.jpg")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 20)
}
