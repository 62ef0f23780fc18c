package main

import (
	"log"
	"os"
	"strconv"
)

type Environment struct {
	ServerAddress string
	RedisAddress  string
	Latitude      float64
	Longitude     float64
	HasLocation   bool
}

// LoadEnvironment reads and validates env vars
func LoadEnvironment() Environment {
	env := Environment{
		ServerAddress: os.Getenv("SERVER_ADDRESS"),
		RedisAddress:  os.Getenv("REDIS_ADDRESS"),
	}

	if env.ServerAddress == "" {
		env.ServerAddress = ":8080"
	}
	if env.RedisAddress == "" {
		env.RedisAddress = "tcp://localhost:6379"
	}

	latStr := os.Getenv("LOCATION_LAT")
	lonStr := os.Getenv("LOCATION_LON")
	if latStr != "" && lonStr != "" {
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lon, lonErr := strconv.ParseFloat(lonStr, 64)
		if latErr != nil || lonErr != nil {
			log.Fatal("LOCATION_LAT / LOCATION_LON must be decimal degrees")
		}
		env.Latitude = lat
		env.Longitude = lon
		env.HasLocation = true
	}

	return env
}
