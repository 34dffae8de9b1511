// internal/upload/pipeline_test.go
package upload

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfms-invoicing/pkg/models"
)

type fakePhotoStore struct {
	objects map[string][]byte // key → content
}

func (f *fakePhotoStore) FetchPhoto(ctx context.Context, key string) ([]byte, string, error) {
	content, ok := f.objects[key]
	if !ok {
		return nil, "", fmt.Errorf("no such key %s", key)
	}
	return content, "image/jpeg", nil
}

type fakeAttachmentAPI struct {
	mu       sync.Mutex
	received []attachmentRequest
	failFor  map[string]error // fileName → error
	blockCtx bool             // fail with the context's error once cancelled
}

func (f *fakeAttachmentAPI) Call(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	if f.blockCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var req attachmentRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[req.FileName]; ok {
		return nil, err
	}
	f.received = append(f.received, req)
	return json.RawMessage(`{"attached":true}`), nil
}

func TestPipeline_UploadsAllFiles(t *testing.T) {
	photos := &fakePhotoStore{objects: map[string][]byte{
		"invoice_photos/inv/a.jpg": []byte("photo-a"),
		"invoice_photos/inv/b.jpg": []byte("photo-b"),
	}}
	api := &fakeAttachmentAPI{}
	p := NewPipeline(api, photos, 2, 10)

	report, err := p.Upload(context.Background(), uuid.New(), "WO-1", []FileRef{
		{Key: "invoice_photos/inv/a.jpg", FileName: "a.jpg"},
		{Key: "invoice_photos/inv/b.jpg", FileName: "b.jpg"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	assert.False(t, report.Cancelled)
	require.Len(t, report.Files, 2)
	// results keep input order even with concurrent workers
	assert.Equal(t, "a.jpg", report.Files[0].FileName)
	assert.Equal(t, "b.jpg", report.Files[1].FileName)

	require.Len(t, api.received, 2)
	for _, req := range api.received {
		decoded, err := base64.StdEncoding.DecodeString(req.Data)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(decoded, []byte("photo-")))
		assert.Equal(t, "image/jpeg", req.ContentType)
	}
}

func TestPipeline_OneFailureNeverBlocksSiblings(t *testing.T) {
	photos := &fakePhotoStore{objects: map[string][]byte{
		"k/a.jpg": []byte("a"),
		"k/b.jpg": []byte("b"),
		"k/c.jpg": []byte("c"),
	}}
	api := &fakeAttachmentAPI{failFor: map[string]error{
		"b.jpg": fmt.Errorf("rfms rejected the attachment"),
	}}
	p := NewPipeline(api, photos, 2, 10)

	report, err := p.Upload(context.Background(), uuid.New(), "WO-1", []FileRef{
		{Key: "k/a.jpg", FileName: "a.jpg"},
		{Key: "k/b.jpg", FileName: "b.jpg"},
		{Key: "k/c.jpg", FileName: "c.jpg"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, models.UploadOutcomeFailed, report.Files[1].Outcome)
	assert.Contains(t, report.Files[1].Reason, "rejected")
	assert.Equal(t, models.UploadOutcomeSucceeded, report.Files[0].Outcome)
	assert.Equal(t, models.UploadOutcomeSucceeded, report.Files[2].Outcome)
}

func TestPipeline_OversizedFileFailsByName(t *testing.T) {
	photos := &fakePhotoStore{objects: map[string][]byte{
		"k/small.jpg": []byte("ok"),
		"k/huge.jpg":  bytes.Repeat([]byte("x"), 2<<20),
	}}
	api := &fakeAttachmentAPI{}
	p := NewPipeline(api, photos, 2, 1) // 1 MB cap

	report, err := p.Upload(context.Background(), uuid.New(), "WO-1", []FileRef{
		{Key: "k/small.jpg", FileName: "small.jpg"},
		{Key: "k/huge.jpg", FileName: "huge.jpg"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, models.UploadOutcomeFailed, report.Files[1].Outcome)
	assert.Contains(t, report.Files[1].Reason, "limit")
	// the oversized file never reached RFMS
	require.Len(t, api.received, 1)
	assert.Equal(t, "small.jpg", api.received[0].FileName)
}

func TestPipeline_MissingPhotoFails(t *testing.T) {
	photos := &fakePhotoStore{objects: map[string][]byte{}}
	p := NewPipeline(&fakeAttachmentAPI{}, photos, 2, 10)

	report, err := p.Upload(context.Background(), uuid.New(), "WO-1", []FileRef{
		{Key: "k/gone.jpg", FileName: "gone.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Files[0].Reason, "photo store")
}

func TestPipeline_CancellationMarksRemaining(t *testing.T) {
	photos := &fakePhotoStore{objects: map[string][]byte{
		"k/a.jpg": []byte("a"),
		"k/b.jpg": []byte("b"),
		"k/c.jpg": []byte("c"),
	}}
	api := &fakeAttachmentAPI{blockCtx: true}
	p := NewPipeline(api, photos, 1, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.Upload(ctx, uuid.New(), "WO-1", []FileRef{
		{Key: "k/a.jpg", FileName: "a.jpg"},
		{Key: "k/b.jpg", FileName: "b.jpg"},
		{Key: "k/c.jpg", FileName: "c.jpg"},
	})
	require.NoError(t, err)

	assert.True(t, report.Cancelled)
	assert.Equal(t, 0, report.Succeeded)
	for _, fr := range report.Files {
		assert.Equal(t, models.UploadOutcomeCancelled, fr.Outcome)
	}
}

func TestPipeline_EmptyBatchAndMissingDocNumber(t *testing.T) {
	p := NewPipeline(&fakeAttachmentAPI{}, &fakePhotoStore{}, 2, 10)

	report, err := p.Upload(context.Background(), uuid.New(), "WO-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Succeeded)
	assert.Empty(t, report.Files)

	_, err = p.Upload(context.Background(), uuid.New(), "", []FileRef{{Key: "k", FileName: "f"}})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "doc number"))
}
