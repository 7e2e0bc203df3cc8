package main

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

var logger = logrus.StandardLogger()

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Infof("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
