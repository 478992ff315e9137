package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePage(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		count   int
		hasMore bool
		total   int
	}{
		{"wrapped", `{"data":{"messages":[{"id":1}],"hasMore":true,"totalCount":9}}`, 1, true, 9},
		{"bare", `{"messages":[{"id":1},{"id":2}],"total":2}`, 2, false, 2},
		{"totalCount wins", `{"messages":[],"totalCount":3,"total":7}`, 0, false, 3},
		{"empty object", `{}`, 0, false, 0},
		{"null messages", `{"data":{"messages":null}}`, 0, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := DecodePage([]byte(tt.body))
			require.NoError(t, err)
			require.NotNil(t, page.Messages)
			assert.Len(t, page.Messages, tt.count)
			assert.Equal(t, tt.hasMore, page.HasMore)
			assert.Equal(t, tt.total, page.Total)
		})
	}
}

func TestDecodePage_Malformed(t *testing.T) {
	for _, body := range []string{``, `null`, `"text"`, `[]`, `{"messages":"nope"}`} {
		_, err := DecodePage([]byte(body))
		assert.ErrorIs(t, err, ErrMalformedResponse, body)
	}
}
