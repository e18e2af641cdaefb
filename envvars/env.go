package envvars

import (
	"log"
	"os"
)

// Environment variable names.
const (
	ProjectID   = "FIREBASE_PROJECT_ID"
	Environment = "ENVIRONMENT"
	PhotoBucket = "PHOTO_BUCKET"
	Port        = "PORT"
)

const (
	DevEnv        = "dev"
	ProductionEnv = "production"
)

type Env struct {
	ProjectID   string
	Environment string
	PhotoBucket string
	Port        string
}

func GetEvn() Env {
	projectID, ok := os.LookupEnv(ProjectID)
	if !ok {
		log.Fatalf("%s required", ProjectID)
	}
	environment, ok := os.LookupEnv(Environment)
	if !ok {
		environment = DevEnv
	}
	port, ok := os.LookupEnv(Port)
	if !ok {
		port = "8080"
	}
	return Env{
		ProjectID:   projectID,
		Environment: environment,
		PhotoBucket: os.Getenv(PhotoBucket),
		Port:        port,
	}
}

func IsProd(env Env) bool {
	return env.Environment == ProductionEnv
}

func IsDev(env Env) bool {
	return env.Environment == DevEnv
}
