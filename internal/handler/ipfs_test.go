package handler_test

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferchain/inferchain/internal/handler/dto"
	"github.com/inferchain/inferchain/internal/ipfs"
	"github.com/inferchain/inferchain/internal/testutil/apptest"
)

type stubPinner struct {
	err      error
	gotName  string
	gotBytes []byte
}

func (s *stubPinner) Configured() bool { return true }

func (s *stubPinner) PinFile(_ context.Context, fileName string, content []byte) (*ipfs.PinResult, error) {
	s.gotName = fileName
	s.gotBytes = content
	if s.err != nil {
		return nil, s.err
	}
	return &ipfs.PinResult{Hash: validCID, Size: int64(len(content))}, nil
}

func upload(t *testing.T, env *apptest.Env, field, fileName string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/ipfs/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.Router.ServeHTTP(rec, req)
	return rec
}

func TestIPFS_UploadNotConfigured(t *testing.T) {
	t.Parallel()
	env := apptest.New(t, apptest.Options{})

	rec := upload(t, env, "file", "weights.bin", []byte("abc"))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "IPFS_DISABLED", apptest.Decode[dto.ErrorResponse](t, rec).Code)
}

func TestIPFS_Upload(t *testing.T) {
	t.Parallel()
	pinner := &stubPinner{}
	env := apptest.New(t, apptest.Options{Pinner: pinner})

	rec := upload(t, env, "file", "../../model card.md", []byte("# Sentiment"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := apptest.Decode[dto.UploadResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, validCID, resp.Hash)
	assert.Equal(t, "ipfs://"+validCID, resp.Path)
	assert.Equal(t, "model card.md", resp.FileName)
	assert.Equal(t, int64(11), resp.Size)
	assert.Equal(t, "model card.md", pinner.gotName)
	assert.Equal(t, []byte("# Sentiment"), pinner.gotBytes)
}

func TestIPFS_UploadRejections(t *testing.T) {
	t.Parallel()

	t.Run("missing file field", func(t *testing.T) {
		env := apptest.New(t, apptest.Options{Pinner: &stubPinner{}})
		rec := upload(t, env, "attachment", "a.txt", []byte("x"))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "No file provided", apptest.Decode[dto.ErrorResponse](t, rec).Error)
	})

	t.Run("not multipart", func(t *testing.T) {
		env := apptest.New(t, apptest.Options{Pinner: &stubPinner{}})
		rec := env.Do(t, http.MethodPost, "/ipfs/upload", map[string]string{"file": "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("too large", func(t *testing.T) {
		env := apptest.New(t, apptest.Options{Pinner: &stubPinner{}})
		rec := upload(t, env, "file", "big.bin", bytes.Repeat([]byte{1}, apptest.MaxBodyBytes+1))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("pinning fails", func(t *testing.T) {
		env := apptest.New(t, apptest.Options{Pinner: &stubPinner{err: errors.New("pinata returned 401")}})
		rec := upload(t, env, "file", "a.txt", []byte("x"))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		resp := apptest.Decode[dto.ErrorResponse](t, rec)
		assert.Equal(t, "IPFS_UPLOAD_FAILED", resp.Code)
		assert.Contains(t, resp.Details, "401")
	})
}
