package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	athan "github.com/athanhub/athan-service"
)

func main() {
	_ = godotenv.Load()
	env := LoadEnvironment()

	options := []athan.ServiceOption{
		athan.WithRedisConfig(env.RedisAddress),
	}
	if env.HasLocation {
		options = append(options, athan.WithLocationProvider(athan.StaticLocationProvider{
			Fix: athan.Coordinates{Latitude: env.Latitude, Longitude: env.Longitude},
		}))
	}

	client, err := athan.NewClient(options...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create athan client")
	}
	if err := client.Initialize(); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize athan client")
	}
	defer client.Stop()

	router := gin.Default()
	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/prayers", getPrayerTimes(client))
	api.GET("/prayers/next", getNextPrayer(client))
	api.PUT("/settings", updateSettings(client))
	api.PUT("/location", updateLocation(client))

	log.Info().Str("addr", env.ServerAddress).Msg("listening")
	if err := router.Run(env.ServerAddress); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func getPrayerTimes(client *athan.Client) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		date := time.Now()
		if raw := ctx.Query("date"); raw != "" {
			parsed, err := time.Parse("2006-01-02", raw)
			if err != nil {
				log.Warn().Str("date", raw).Msg("invalid date parameter")
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
				return
			}
			date = parsed
		}

		result, err := client.GetPrayerTimes(ctx.Request.Context(), date)
		if err != nil {
			log.Error().Err(err).Msg("getPrayerTimes failed")
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusOK, entryResponse(result))
	}
}

func getNextPrayer(client *athan.Client) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		next, err := client.GetNextPrayer(ctx.Request.Context())
		if err != nil {
			log.Error().Err(err).Msg("getNextPrayer failed")
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{
			"prayer": next.Name,
			"time":   next.Time.UTC().Format(time.RFC3339),
			"stale":  next.Stale,
		})
	}
}

func updateSettings(client *athan.Client) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var settings athan.Settings
		if err := ctx.ShouldBindJSON(&settings); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid settings payload"})
			return
		}
		if err := client.OnSettingsChanged(settings); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx.Status(http.StatusNoContent)
	}
}

func updateLocation(client *athan.Client) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var coords athan.Coordinates
		if err := ctx.ShouldBindJSON(&coords); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid location payload"})
			return
		}
		if err := client.OnLocationChanged(coords); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx.Status(http.StatusNoContent)
	}
}

func entryResponse(result *athan.PrayerTimesResult) gin.H {
	times := gin.H{}
	for _, p := range []athan.Prayer{athan.Fajr, athan.Sunrise, athan.Dhuhr, athan.Asr, athan.Maghrib, athan.Isha} {
		times[p.String()] = result.Entry.TimeFor(p).UTC().Format(time.RFC3339)
	}
	return gin.H{
		"date":  result.Entry.Date,
		"times": times,
		"stale": result.Stale,
	}
}
