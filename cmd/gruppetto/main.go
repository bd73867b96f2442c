package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	// Autoloads .env file to supply environment variables
	_ "github.com/joho/godotenv/autoload"

	"github.com/bourbonchasers/gruppetto/internal/handlers/auth"
	"github.com/bourbonchasers/gruppetto/internal/handlers/callback"
	"github.com/bourbonchasers/gruppetto/internal/handlers/dashboard"
	synchandler "github.com/bourbonchasers/gruppetto/internal/handlers/sync"
	"github.com/bourbonchasers/gruppetto/internal/handlers/webhook"
	"github.com/bourbonchasers/gruppetto/internal/middleware"
)

func main() {
	port := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		port = ":" + val
	}
	http.HandleFunc("/", indexHandler)
	http.HandleFunc("/auth", auth.AuthHandler)
	http.HandleFunc("/logout", auth.LogoutHandler)
	http.HandleFunc("/webhook", webhookHandler)
	http.Handle("/sync", middleware.RequireAthlete(http.HandlerFunc(synchandler.SyncHandler)))
	http.HandleFunc("/api/dashboard", dashboard.DashboardHandler)
	log.Println("Starting server on port", port)
	log.Fatal(http.ListenAndServe(port, nil)) //#nosec: G114
}

func indexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":    "healthy",
		"service":   "Gruppetto Strava Tracker",
		"timestamp": time.Now().Unix(),
	}); err != nil {
		log.Println(err)
	}
}

func webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == "GET" {
		callback.CallbackHandler(w, r)
	}
	if r.Method == "POST" {
		webhook.EventHandler(w, r)
	}
}
