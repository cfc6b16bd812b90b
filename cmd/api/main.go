package main

import (
	"context"
	"log"
	"os"

	"dealflow/advisory"
	"dealflow/auth"
	"dealflow/coinvest"
	"dealflow/db"
	"dealflow/event"
	"dealflow/offer"
	"dealflow/review"
	"dealflow/workflow"
)

func main() {
	ctx := context.Background()

	connString := os.Getenv("DATABASE_URL")
	pool, err := db.NewPool(ctx, connString)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	advisors := advisory.NewRepository(pool)
	timeline := event.NewTimeline()
	outbox := event.NewOutbox()

	authService := auth.NewService(auth.NewRepository(pool), os.Getenv("JWT_SECRET"))
	offerService := offer.NewService(pool, offer.NewRepository(pool), advisors, timeline, outbox)
	opportunityService := coinvest.NewOpportunityService(pool, coinvest.NewOpportunityRepository(pool), advisors, timeline, outbox)
	coOfferService := coinvest.NewOfferService(pool, coinvest.NewOfferRepository(pool), coinvest.NewOpportunityRepository(pool), advisors, timeline, outbox)
	reviewService := review.NewService(review.NewRepository(pool))

	engine := workflow.NewEngine(offerService, opportunityService, coOfferService, reviewService)

	log.Printf("workflow engine ready: %+v", engine != nil && authService != nil)
}
