package conn

import (
	"net/url"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionDSNDefaults(t *testing.T) {
	dsn, err := Option{User: "bot", Password: "secret", Database: "portal"}.dsn()
	require.NoError(t, err)

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "localhost:5432", u.Host)
	assert.Equal(t, "/portal", u.Path)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
	password, _ := u.User.Password()
	assert.Equal(t, "secret", password)
}

func TestOptionDSNParams(t *testing.T) {
	dsn, err := Option{Host: "db", Port: 6543, SSLMode: "require", Params: map[string]string{"application_name": "gatewayd", "": "x"}}.dsn()
	require.NoError(t, err)
	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db:6543", u.Host)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
	assert.Equal(t, "gatewayd", u.Query().Get("application_name"))
	assert.Len(t, u.Query(), 2)
}

func TestOptionConnStringWins(t *testing.T) {
	dsn, err := Option{Host: "ignored", ConnString: "postgres://a@b/c"}.dsn()
	require.NoError(t, err)
	assert.Equal(t, "postgres://a@b/c", dsn)
}

func TestOptionDSNRedactsPassword(t *testing.T) {
	assert.NotContains(t, Option{User: "bot", Password: "secret"}.DSN(), "secret")
	assert.NotContains(t, Option{ConnString: "postgres://bot:secret@db/portal"}.DSN(), "secret")
}

func TestOpenWrapsPool(t *testing.T) {
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pool.Close()

	c, err := Open(pool, nil)
	require.NoError(t, err)
	require.NotNil(t, c.DB())

	mock.ExpectClose()
	require.NoError(t, c.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenNilPool(t *testing.T) {
	_, err := Open(nil, nil)
	assert.Error(t, err)

	var c *Client
	assert.Nil(t, c.DB())
	assert.NoError(t, c.Close())
}
