package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
)

func TestExchangeCreatesVoterOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)

	// 1. First exchange creates a basic voter
	first := app.exchange(t, "alice")
	assert.Equal(t, domain.RoleBasic, first.Voter.Role)
	assert.NotEmpty(t, first.Tokens.AccessToken)
	assert.NotEmpty(t, first.Tokens.RefreshToken)

	// 2. Second exchange resolves the same voter in a new family
	second := app.exchange(t, "alice")
	assert.Equal(t, first.Voter.ID, second.Voter.ID)
	assert.NotEqual(t, first.Tokens.RefreshToken, second.Tokens.RefreshToken)

	var count int
	require.NoError(t, app.DB.QueryRow(`SELECT COUNT(*) FROM voters WHERE subject = 'alice'`).Scan(&count))
	assert.Equal(t, 1, count)

	// 3. Access credential resolves the caller
	resp := app.do(t, http.MethodGet, "/api/me", first.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me domain.Voter
	decode(t, resp, &me)
	assert.Equal(t, first.Voter.ID, me.ID)

	// 4. Rejected assertion
	resp = app.do(t, http.MethodPost, "/auth/exchange", "", map[string]string{"credential": "bad"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, domain.CodeInvalidToken, errorCode(t, resp))
}

func TestRefreshReplayRevokesFamily(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)

	session := app.exchange(t, "bob")

	// 1. Legitimate rotation
	resp := app.rotate(t, session.Tokens.RefreshToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rotated domain.TokenPair
	decode(t, resp, &rotated)
	assert.NotEqual(t, session.Tokens.RefreshToken, rotated.RefreshToken)

	// 2. Replaying the rotated credential is detected
	resp = app.rotate(t, session.Tokens.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, domain.CodeTokenReuseDetected, errorCode(t, resp))

	// 3. The whole family is dead, including the newest refresh credential
	resp = app.rotate(t, rotated.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, domain.CodeTokenFamilyRevoked, errorCode(t, resp))

	// 4. Access credentials of the family are refused as well
	resp = app.do(t, http.MethodGet, "/api/me", rotated.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, domain.CodeTokenRevoked, errorCode(t, resp))

	// 5. The replay left an audit trail
	var entries int
	require.NoError(t, app.DB.QueryRow(
		`SELECT COUNT(*) FROM audit_entries WHERE actor_id = $1 AND action = $2`, session.Voter.ID, domain.AuditTokenReuse,
	).Scan(&entries))
	assert.Equal(t, 1, entries)

	// 6. A fresh sign-in opens an unaffected family
	fresh := app.exchange(t, "bob")
	resp = app.rotate(t, fresh.Tokens.RefreshToken)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRotationCarriesCurrentRole(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)

	accessToken := app.operator(t, "carol")

	resp := app.do(t, http.MethodGet, "/api/me", accessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me domain.Voter
	decode(t, resp, &me)
	assert.Equal(t, domain.RoleOperator, me.Role)
}

func TestRevokeFamilyByRefreshCredential(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)

	session := app.exchange(t, "dave")

	// 1. Logout with the refresh credential
	resp := app.do(t, http.MethodPost, "/auth/revoke", "", map[string]string{"token": session.Tokens.RefreshToken})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// 2. Revoking again is a no-op
	resp = app.do(t, http.MethodPost, "/auth/revoke", "", map[string]string{"token": session.Tokens.RefreshToken})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// 3. Both credentials of the family are refused
	resp = app.rotate(t, session.Tokens.RefreshToken)
	assert.Equal(t, domain.CodeTokenFamilyRevoked, errorCode(t, resp))

	resp = app.do(t, http.MethodGet, "/api/me", session.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
