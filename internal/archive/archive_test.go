package archive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestObjectKey(t *testing.T) {
	at := time.Date(2026, 4, 9, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))

	assert.Equal(t, "replies/2026/04/10/18c2a9f.eml", ObjectKey("18c2a9f", at))
	assert.Equal(t, "replies/2026/04/10/INBOX_7_42.eml", ObjectKey("INBOX:7:42", at))
	assert.Equal(t, "replies/2026/04/10/message.eml", ObjectKey("../", at))
}

func TestNoop(t *testing.T) {
	key, err := Noop{}.Store(context.Background(), "id", time.Now(), []byte("raw"))
	assert.NoError(t, err)
	assert.Empty(t, key)

	_, err = Noop{}.DownloadURL(context.Background(), "k")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
