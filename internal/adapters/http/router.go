package http

import (
	"net/http"
	"sort"
	"time"

	"github.com/dkeye/Consult/internal/adapters/signal"
	"github.com/dkeye/Consult/internal/app"
	"github.com/dkeye/Consult/internal/config"
	"github.com/dkeye/Consult/internal/core"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "ct"

// ClientTokenMiddleware gives every browser a stable token kept in the
// session cookie. It only correlates log lines; socket ids are per connection.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// Deps are the services the router exposes.
type Deps struct {
	Signal   *signal.SignalWSController
	Meetings *app.MeetingService
	Events   *app.MeetingEvents
	Rooms    core.RoomRegistry
}

func SetupRouter(cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("ConsultSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Server is running"})
	})

	api := r.Group("/api")

	mh := &meetingHandler{meetings: deps.Meetings, events: deps.Events, heartbeat: 15 * time.Second}
	api.POST("/create-meeting", mh.create)
	api.GET("/meeting/:roomId", mh.get)
	api.PUT("/meeting/:roomId/status", mh.updateStatus)
	api.POST("/meeting/:roomId/participant", mh.addParticipant)
	api.GET("/meeting/:roomId/events", mh.stream)

	api.GET("/rooms", func(c *gin.Context) {
		rooms := deps.Rooms.List()
		sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
		c.JSON(http.StatusOK, gin.H{"success": true, "data": rooms})
	})

	api.GET("/rtc-config", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    gin.H{"iceServers": []gin.H{{"urls": cfg.RTC.ICEServers}}},
		})
	})

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws signal endpoint hit")
		deps.Signal.HandleSignal(c)
	})

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
