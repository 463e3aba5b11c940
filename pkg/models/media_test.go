package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortMediaRefsByPosition(t *testing.T) {
	refs := []MediaRef{
		{MediaID: "c", Position: 40, OrderType: OrderTypeAttachment},
		{MediaID: "a", Position: 10, OrderType: OrderTypeAttachment},
		{MediaID: "b", Position: 25, OrderType: OrderTypeLink},
	}

	SortMediaRefs(refs)

	assert.Equal(t, "a", refs[0].MediaID)
	assert.Equal(t, "b", refs[1].MediaID)
	assert.Equal(t, "c", refs[2].MediaID)
}

func TestSortMediaRefsAttachmentWinsTies(t *testing.T) {
	refs := []MediaRef{
		{MediaID: "link", Position: 10, OrderType: OrderTypeLink},
		{MediaID: "photo", Position: 10, OrderType: OrderTypeAttachment},
	}

	SortMediaRefs(refs)

	assert.Equal(t, "photo", refs[0].MediaID)
	assert.Equal(t, "link", refs[1].MediaID)
}

func TestSortMediaRefsStable(t *testing.T) {
	refs := []MediaRef{
		{MediaID: "first", Position: 5, OrderType: OrderTypeLink},
		{MediaID: "second", Position: 5, OrderType: OrderTypeLink},
	}

	SortMediaRefs(refs)

	assert.Equal(t, "first", refs[0].MediaID)
	assert.Equal(t, "second", refs[1].MediaID)
}
