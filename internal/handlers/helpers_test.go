package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studygroup-chat/internal/middleware"
	"studygroup-chat/internal/models"
	"studygroup-chat/internal/session"
	"studygroup-chat/internal/ws/wstest"
)

const (
	eventually = 2 * time.Second
	tick       = 5 * time.Millisecond
)

var testIdentity = models.Identity{Token: "tok", UserID: "me", UserName: "Me"}

func newHolder(d *wstest.Dialer) *session.Holder {
	return session.NewHolder(func(ctx context.Context, identity models.Identity) (*session.Session, error) {
		return session.Start(ctx, identity, d, session.Config{
			ReconnectDelay: 10 * time.Millisecond,
			TypingIdle:     time.Minute,
		}, nil, zap.NewNop().Sugar())
	})
}

// signedIn returns a holder with an open, connected session.
func signedIn(t *testing.T) (*session.Holder, *session.Session, *wstest.Dialer) {
	t.Helper()
	d := wstest.NewDialer()
	holder := newHolder(d)
	s, err := holder.Login(context.Background(), testIdentity)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = holder.Logout(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), eventually)
	defer cancel()
	require.NoError(t, s.Transport().WaitConnected(ctx))
	return holder, s, d
}

func setupRouter(holder *session.Holder, routes func(g *gin.RouterGroup)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	routes(r.Group("/", middleware.RequireSession(holder)))
	return r
}
