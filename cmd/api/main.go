package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/fanvue/fanvue-app-starter/internal/app"
)

func main() {
	logger := app.NewLogger(os.Stderr, os.Getenv("LOG_LEVEL"))

	application, err := app.NewApp(context.Background(), logger)
	if err != nil {
		logger.Error("startup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	lambda.Start(application.HandleRequest)
}
