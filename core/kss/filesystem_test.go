package kss_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/restgen/core/kss"
)

func Test_Local_PutServeDelete(t *testing.T) {
	dir := t.TempDir()
	driver, err := kss.New(context.Background(), kss.Configuration{
		DriverType:         kss.DriverTypeLocal,
		LocalConfiguration: &kss.LocalConfiguration{BasePath: dir},
	})
	require.NoError(t, err)
	f := driver.(*kss.LocalFilesystem)

	key := "users/0b7f/avatar.txt"
	require.NoError(t, f.Put(context.Background(), key, strings.NewReader("123"), "text/plain"))
	data, err := os.ReadFile(filepath.Join(dir, "users", "0b7f", "avatar.txt"))
	require.NoError(t, err)
	assert.Equal(t, "123", string(data))

	router := mux.NewRouter()
	f.Mount(router, "/files")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/"+key, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "123", string(body))

	require.NoError(t, f.Delete(context.Background(), key))
	require.NoError(t, f.Delete(context.Background(), key))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/"+key, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_Local_RejectsTraversal(t *testing.T) {
	f, err := kss.NewLocalFilesystem(kss.LocalConfiguration{BasePath: t.TempDir()})
	require.NoError(t, err)
	assert.Error(t, f.Put(context.Background(), "../escape", strings.NewReader("x"), ""))
	assert.Error(t, f.Delete(context.Background(), ""))
}

func Test_New(t *testing.T) {
	driver, err := kss.New(context.Background(), kss.Configuration{})
	assert.NoError(t, err)
	assert.Nil(t, driver)

	_, err = kss.New(context.Background(), kss.Configuration{DriverType: kss.DriverTypeLocal})
	assert.Error(t, err)
	_, err = kss.New(context.Background(), kss.Configuration{DriverType: "ftp"})
	assert.Error(t, err)
	_, err = kss.NewS3(context.Background(), kss.S3Configuration{})
	assert.Error(t, err)
}
