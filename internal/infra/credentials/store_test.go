package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct {
	token   string
	err     error
	queried []any
	exec    struct {
		query string
		args  []any
	}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.exec.query = query
	s.exec.args = args
	return pgconn.CommandTag{}, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.queried = args
	return stubRow{token: s.token, err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	token string
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	ptr, ok := dest[0].(*string)
	if !ok {
		return errors.New("invalid dest")
	}
	*ptr = r.token
	return nil
}

func TestToken(t *testing.T) {
	exec := &stubExecutor{token: " sk-test "}
	key, err := NewStore(exec).Token(context.Background(), ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", key)
	assert.Equal(t, []any{ProviderOpenAI}, exec.queried)
}

func TestTokenNoRows(t *testing.T) {
	key, err := NewStore(&stubExecutor{err: pgx.ErrNoRows}).Token(context.Background(), ProviderQwen)
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestTokenPropagatesErrors(t *testing.T) {
	_, err := NewStore(&stubExecutor{err: errors.New("boom")}).Token(context.Background(), ProviderQwen)
	require.Error(t, err)
}

func TestResolvePrefersConfiguredKey(t *testing.T) {
	exec := &stubExecutor{token: "from-db"}
	key, err := NewStore(exec).Resolve(context.Background(), ProviderGemini, " from-env ")
	require.NoError(t, err)
	assert.Equal(t, "from-env", key)
	assert.Nil(t, exec.queried)

	key, err = NewStore(exec).Resolve(context.Background(), ProviderGemini, "")
	require.NoError(t, err)
	assert.Equal(t, "from-db", key)
}

func TestResolveWithoutStore(t *testing.T) {
	var store *Store
	key, err := store.Resolve(context.Background(), ProviderStability, "")
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestSetToken(t *testing.T) {
	exec := &stubExecutor{}
	require.NoError(t, NewStore(exec).SetToken(context.Background(), " ModelsLab ", "secret", nil))
	require.Len(t, exec.exec.args, 3)
	assert.Equal(t, ProviderModelsLab, exec.exec.args[0])
	assert.Equal(t, "secret", exec.exec.args[1])
	assert.JSONEq(t, `{}`, string(exec.exec.args[2].([]byte)))
}

func TestSetTokenValidation(t *testing.T) {
	store := NewStore(&stubExecutor{})
	assert.Error(t, store.SetToken(context.Background(), ProviderOpenAI, " ", nil))
	assert.Error(t, store.SetToken(context.Background(), "replicate", "secret", nil))
}
