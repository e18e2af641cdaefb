package main

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"nestling/clients/gcp"
	"nestling/envvars"
	"nestling/services/child"
	"nestling/services/family"
	"nestling/services/invite"
	"nestling/services/notification"
	"nestling/services/resolver"
	"nestling/services/tracking"
	"nestling/services/watcher"
	"nestling/store"
	"nestling/validator"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found")
	}
	env := envvars.GetEvn()

	client := gcp.CreateFirestore(ctx, env.ProjectID)
	defer client.Close()
	st := store.NewFirestore(client)

	var uploader child.Uploader
	if env.PhotoBucket != "" {
		storageClient, err := gcp.NewStorage(ctx, env.PhotoBucket)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create storage client")
		}
		defer storageClient.Close()
		uploader = storageClient
	}

	pusher := notification.NewExpoPusher(resty.New())
	notificationService := notification.NewService(st, pusher)
	familyService := family.NewService(st)
	inviteService := invite.NewService(st, notificationService)
	resolverService := resolver.NewService(st)
	childService := child.NewService(st, uploader)
	trackingService := tracking.NewService(st)

	expiry := watcher.New(st, inviteService, notificationService)
	go expiry.Run(ctx)

	server := NewServer(
		familyService,
		inviteService,
		resolverService,
		childService,
		trackingService,
		notificationService,
		st,
	)

	if envvars.IsProd(env) {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.Use(cors.Default())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ping": "pong"})
	})

	authed := r.Group("/")
	authed.Use(validator.New(ctx, env.ProjectID).Middleware())
	server.RegisterRoutes(authed)

	s := &http.Server{
		Handler: r,
		Addr:    "0.0.0.0:" + env.Port,
	}

	log.Info().Str("port", env.Port).Msg("starting HTTP server")
	if err := s.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
