package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/okadri/richdoc/server"
	"github.com/okadri/richdoc/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: loading .env: %v", err)
	}

	addr := flag.String("addr", envOr("ADDR", ":8080"), "HTTP listen address")
	firestoreProject := flag.String("firestore-project", os.Getenv("FIRESTORE_PROJECT"), "GCP project for Firestore persistence (empty for in-memory)")
	redisAddr := flag.String("redis-addr", os.Getenv("REDIS_ADDR"), "Redis address for cross-instance broadcast (empty to disable)")
	flushInterval := flag.Duration("flush-interval", 5*time.Second, "write-behind flush interval for the Firestore cache")
	flag.Parse()

	ctx := context.Background()

	var historyStore store.HistoryStore = store.NewMemoryStore()
	if *firestoreProject != "" {
		client, err := firestore.NewClient(ctx, *firestoreProject)
		if err != nil {
			log.Fatalf("firestore: %v", err)
		}
		defer client.Close()
		cached := store.NewCachedStore(store.NewFirestoreStore(client), *flushInterval)
		defer cached.Close()
		historyStore = cached
	}

	var broadcaster server.Broadcaster = server.NopBroadcaster{}
	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis: %v", err)
		}
		rb, err := server.NewRedisBroadcaster(ctx, rdb)
		if err != nil {
			log.Fatalf("redis subscribe: %v", err)
		}
		defer rb.Close()
		broadcaster = rb
	}

	rebaser := server.NewRebaser(historyStore)
	hub := server.NewHub(rebaser, broadcaster)
	go hub.Run()

	handler := server.NewHandler(rebaser, hub)

	log.Printf("Starting server on %s", *addr)
	if err := http.ListenAndServe(*addr, handler); err != nil {
		log.Fatal(err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
