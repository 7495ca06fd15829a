package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"

	appcfg "github.com/jask/despacho/internal/config"
)

func TestLocalPutKeepsNameAndAvoidsOverwrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	l := NewLocal(dir)
	ctx := context.Background()

	first, err := l.Put(ctx, strings.NewReader("one"), PutInput{Filename: "finalizados-2026-03-02.xlsx"})
	require.NoError(t, err)
	require.Equal(t, "finalizados-2026-03-02.xlsx", first.Key)
	require.Equal(t, filepath.Join(dir, first.Key), first.Location)

	second, err := l.Put(ctx, strings.NewReader("two"), PutInput{Filename: "finalizados-2026-03-02.xlsx"})
	require.NoError(t, err)
	require.Equal(t, "finalizados-2026-03-02-1.xlsx", second.Key)

	raw, err := os.ReadFile(first.Location)
	require.NoError(t, err)
	require.Equal(t, "one", string(raw))

	require.NoError(t, l.Delete(ctx, second.Key))
	_, err = os.Stat(second.Location)
	require.True(t, os.IsNotExist(err))
}

func TestSafeName(t *testing.T) {
	require.Equal(t, "passwd", safeName("../../etc/passwd"))
	require.Equal(t, "relatorio_diario.xlsx", safeName("relatorio diario.xlsx"))
	require.Equal(t, "export.xlsx", safeName(".."))
	require.Equal(t, "x.xlsx", safeName(`C:\tmp\x.xlsx`))
}

type fakeObjects struct {
	put     *s3.PutObjectInput
	body    string
	deleted string
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = in
	raw, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = string(raw)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = *in.Key
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3PutKeyAndLocation(t *testing.T) {
	fake := &fakeObjects{}
	s := &S3{
		Client:        fake,
		Bucket:        "relatorios",
		Prefix:        "/exports/",
		PublicBaseURL: "https://cdn.example.com",
		now:           func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) },
	}
	res, err := s.Put(context.Background(), strings.NewReader("xlsx"), PutInput{
		Filename:    "relatorio-periodo.xlsx",
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Size:        4,
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(res.Key, "exports/2026-03-02/"))
	require.True(t, strings.HasSuffix(res.Key, "-relatorio-periodo.xlsx"))
	require.Equal(t, "https://cdn.example.com/"+res.Key, res.Location)
	require.Equal(t, "relatorios", *fake.put.Bucket)
	require.EqualValues(t, 4, *fake.put.ContentLength)
	require.Equal(t, "xlsx", fake.body)

	require.NoError(t, s.Delete(context.Background(), res.Key))
	require.Equal(t, res.Key, fake.deleted)
}

func TestS3LocationWithoutPublicURL(t *testing.T) {
	s := &S3{Client: &fakeObjects{}, Bucket: "b"}
	res, err := s.Put(context.Background(), strings.NewReader("x"), PutInput{Filename: "a.xlsx"})
	require.NoError(t, err)
	require.Equal(t, "s3://b/"+res.Key, res.Location)
}

func TestFromConfig(t *testing.T) {
	ctx := context.Background()

	st, err := FromConfig(ctx, appcfg.ExportsConfig{Driver: "local", Dir: t.TempDir()})
	require.NoError(t, err)
	require.IsType(t, &Local{}, st)

	_, err = FromConfig(ctx, appcfg.ExportsConfig{Driver: "s3"})
	require.ErrorContains(t, err, "exports.s3.region")

	_, err = FromConfig(ctx, appcfg.ExportsConfig{Driver: "ftp"})
	require.ErrorContains(t, err, "unknown exports.driver")
}
