package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studygroup-chat/internal/models"
	"studygroup-chat/internal/session"
	"studygroup-chat/internal/ws/wstest"
)

func setupRouter(holder *session.Holder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", RequireSession(holder), func(c *gin.Context) {
		s := SessionFrom(c)
		c.JSON(http.StatusOK, gin.H{"user": c.GetString("userID"), "session": s.ID()})
	})
	return r
}

func TestRequireSessionRejectsAnonymous(t *testing.T) {
	holder := session.NewHolder(nil)
	router := setupRouter(holder)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireSessionExposesSession(t *testing.T) {
	dialer := wstest.NewDialer()
	holder := session.NewHolder(func(ctx context.Context, identity models.Identity) (*session.Session, error) {
		return session.Start(ctx, identity, dialer, session.Config{ReconnectDelay: 10 * time.Millisecond}, nil, zap.NewNop().Sugar())
	})
	_, err := holder.Login(context.Background(), models.Identity{Token: "tok", UserID: "u1"})
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = holder.Logout(context.Background()) })

	rec := httptest.NewRecorder()
	setupRouter(holder).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"user":"u1"`)
}

func TestSessionFromWithoutMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	require.Nil(t, SessionFrom(c))
}
