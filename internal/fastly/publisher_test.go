package fastly

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-redirector/internal/common/errors"
	"edge-redirector/internal/compiler"
	"edge-redirector/internal/locks"
	"edge-redirector/internal/storage"
)

type memoryHistory struct {
	mu      sync.Mutex
	records []*storage.PublishRecord
}

func (m *memoryHistory) Record(_ context.Context, rec *storage.PublishRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memoryHistory) List(context.Context, string, int) ([]*storage.PublishRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records, nil
}

func (m *memoryHistory) Health(context.Context) error { return nil }
func (m *memoryHistory) Close() error                 { return nil }

func compiledArtifacts(t *testing.T) compiler.Artifacts {
	t.Helper()
	res, err := compiler.CompilePayload("json", []byte(`{"matchRules":{"1":{"type":"erMatchRule","matchURL":"/a","redirectURL":"/b"}}}`))
	require.NoError(t, err)
	return res.Artifacts
}

func newTestPublisher(t *testing.T, serverURL string, history storage.HistoryStore) *Publisher {
	lockManager := locks.NewLocalManager()
	t.Cleanup(func() { _ = lockManager.Close() })
	return NewPublisher(NewClient(ClientConfig{BaseURL: serverURL}), lockManager, history, time.Minute, nil)
}

func TestPublisher_Publish(t *testing.T) {
	fake, server := newFakeFastly(t, "key", 7)
	history := &memoryHistory{}
	publisher := newTestPublisher(t, server.URL, history)

	result, err := publisher.Publish(context.Background(), "SVC", "key", compiledArtifacts(t))
	require.NoError(t, err)
	assert.Equal(t, &PublishResult{ServiceID: "SVC", ClonedFrom: 7, Version: 8}, result)
	assert.Equal(t, 8, fake.active())

	assert.Equal(t, []string{compiler.HandlerSnippet, compiler.LogicSnippet, compiler.TableSnippet}, fake.snippetNames(8))
	assert.Equal(t, "init", fake.snippet(8, compiler.TableSnippet).Type)
	assert.Equal(t, "recv", fake.snippet(8, compiler.LogicSnippet).Type)
	assert.Equal(t, "error", fake.snippet(8, compiler.HandlerSnippet).Type)
	assert.Contains(t, fake.snippet(8, compiler.TableSnippet).Content, `"/a"`)

	require.Len(t, history.records, 1)
	rec := history.records[0]
	assert.Equal(t, storage.StatusSuccess, rec.Status)
	assert.Equal(t, 7, rec.ClonedFrom)
	assert.Equal(t, 8, rec.Version)
	assert.Equal(t, 3, rec.Snippets)
}

func TestPublisher_RepublishReplacesSnippets(t *testing.T) {
	fake, server := newFakeFastly(t, "key", 1)
	publisher := newTestPublisher(t, server.URL, nil)
	ctx := context.Background()

	_, err := publisher.Publish(ctx, "SVC", "key", compiledArtifacts(t))
	require.NoError(t, err)

	res, err := compiler.CompilePayload("json", []byte(`{"matchRules":{"1":{"type":"erMatchRule","matchURL":"/c","redirectURL":"/d"}}}`))
	require.NoError(t, err)

	result, err := publisher.Publish(ctx, "SVC", "key", res.Artifacts)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ClonedFrom)
	assert.Equal(t, 3, result.Version)

	table := fake.snippet(3, compiler.TableSnippet).Content
	assert.Contains(t, table, `"/c"`)
	assert.NotContains(t, table, `"/a"`)
}

func TestPublisher_StepOrder(t *testing.T) {
	fake, server := newFakeFastly(t, "key", 1)
	publisher := newTestPublisher(t, server.URL, nil)

	_, err := publisher.Publish(context.Background(), "SVC", "key", compiledArtifacts(t))
	require.NoError(t, err)

	del := "DELETE /service/{sid}/version/{v}/snippet/{name}"
	post := "POST /service/{sid}/version/{v}/snippet"
	assert.Equal(t, []string{
		"GET /service/{sid}",
		"PUT /service/{sid}/version/{v}/clone",
		del, del, del,
		post, post, post,
		"PUT /service/{sid}/version/{v}/activate",
	}, fake.callLog())
}

func TestPublisher_FailingStep(t *testing.T) {
	tests := []struct {
		call    string
		status  int
		step    string
		version int
		errType errors.ErrorType
	}{
		{call: "GET /service/{sid}", status: http.StatusNotFound, step: StepActive, errType: errors.ErrTypeNotFound},
		{call: "PUT /service/{sid}/version/{v}/clone", status: http.StatusInternalServerError, step: StepClone, version: 4, errType: errors.ErrTypeUpstream},
		{call: "DELETE /service/{sid}/version/{v}/snippet/{name}", status: http.StatusForbidden, step: StepDelete, version: 5, errType: errors.ErrTypeAuth},
		{call: "POST /service/{sid}/version/{v}/snippet", status: http.StatusBadRequest, step: StepUpload, version: 5, errType: errors.ErrTypeValidation},
		{call: "PUT /service/{sid}/version/{v}/activate", status: http.StatusBadRequest, step: StepActivate, version: 5, errType: errors.ErrTypeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.step, func(t *testing.T) {
			fake, server := newFakeFastly(t, "key", 4)
			fake.failOn[tt.call] = tt.status
			history := &memoryHistory{}
			publisher := newTestPublisher(t, server.URL, history)

			result, err := publisher.Publish(context.Background(), "SVC", "key", compiledArtifacts(t))
			require.Error(t, err)
			assert.Nil(t, result)

			var pe *PublishError
			require.True(t, stderrors.As(err, &pe))
			assert.Equal(t, tt.step, pe.Step)
			assert.Equal(t, tt.version, pe.Version)
			assert.Equal(t, tt.errType, errors.GetType(err))
			assert.Equal(t, 4, fake.active(), "active version must not change")

			require.Len(t, history.records, 1)
			assert.Equal(t, storage.StatusFailed, history.records[0].Status)
			assert.Equal(t, tt.step, history.records[0].FailedStep)
		})
	}
}

func TestPublisher_SerialisesPerService(t *testing.T) {
	fake, server := newFakeFastly(t, "key", 1)
	publisher := newTestPublisher(t, server.URL, nil)
	artifacts := compiledArtifacts(t)

	var wg sync.WaitGroup
	results := make([]*PublishResult, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := publisher.Publish(context.Background(), "SVC", "key", artifacts)
			if assert.NoError(t, err) {
				results[i] = r
			}
		}(i)
	}
	wg.Wait()

	seen := map[int]bool{}
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, r.Version-1, r.ClonedFrom, "each publish clones the previous one")
		seen[r.Version] = true
	}
	assert.Len(t, seen, 4)
	assert.Equal(t, 5, fake.active())
}

func TestPublisher_LockTimeout(t *testing.T) {
	_, server := newFakeFastly(t, "key", 1)
	lockManager := locks.NewLocalManager()
	defer lockManager.Close()

	held, err := lockManager.AcquireLock(context.Background(), locks.ServiceKey("SVC"), time.Minute)
	require.NoError(t, err)
	defer held.Release(context.Background())

	publisher := NewPublisher(NewClient(ClientConfig{BaseURL: server.URL}), lockManager, nil, time.Minute, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = publisher.Publish(ctx, "SVC", "key", compiledArtifacts(t))
	var pe *PublishError
	require.True(t, stderrors.As(err, &pe))
	assert.Equal(t, StepLock, pe.Step)
	assert.True(t, errors.IsType(err, errors.ErrTypeTimeout))
	assert.Contains(t, err.Error(), "publish step lock: ")
	assert.Contains(t, err.Error(), "acquiring lock publish:SVC")
}

func TestPublishError(t *testing.T) {
	cause := errors.ValidationError("bad")
	err := &PublishError{Step: StepUpload, Version: 3, Err: cause}

	assert.Equal(t, "publish step upload (version 3): validation: bad", err.Error())
	assert.True(t, stderrors.Is(err, cause))
}
