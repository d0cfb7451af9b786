package main

import (
	"context"
	"log"
	"time"

	"coachbook/internal/database"
	"coachbook/internal/domain/address"
	"coachbook/internal/domain/auth"
	"coachbook/internal/domain/booking"
	"coachbook/internal/domain/card"
	"coachbook/internal/domain/group"
	"coachbook/internal/domain/notification"
	"coachbook/internal/domain/relationship"
)

// Dev fixture data: two coaches, three students, bound relationships with
// credits, one card template, a pending booking and an open group session.
func main() {
	db, err := database.Connect("coachbook.db")
	if err != nil {
		log.Fatal("DB connection failed:", err)
	}

	log.Println("Running AutoMigrate...")
	if err := db.AutoMigrate(
		&auth.User{},
		&address.Address{},
		&relationship.Relationship{},
		&relationship.Category{},
		&relationship.CategoryBalance{},
		&relationship.CreditLog{},
		&card.CardTemplate{},
		&card.CardInstance{},
		&booking.Booking{},
		&booking.CoachTimeTemplate{},
		&group.GroupSession{},
		&group.GroupRegistration{},
		&notification.Notification{},
	); err != nil {
		log.Fatal("AutoMigrate failed:", err)
	}

	log.Println("Cleaning old data...")
	for _, table := range []string{
		"notifications", "group_registrations", "group_sessions",
		"bookings", "coach_time_templates", "card_instances", "card_templates",
		"credit_logs", "category_balances", "categories", "relationships",
		"addresses", "users",
	} {
		db.Exec("DELETE FROM " + table)
	}

	ctx := context.Background()

	log.Println("Creating users...")
	coachA := auth.User{Name: "Coach Anna", Role: "coach"}
	coachB := auth.User{Name: "Coach Boris", Role: "coach"}
	studentM := auth.User{Name: "Maria", Role: "student"}
	studentN := auth.User{Name: "Nikita", Role: "student"}
	studentO := auth.User{Name: "Olga", Role: "student"}
	for _, u := range []*auth.User{&coachA, &coachB, &studentM, &studentN, &studentO} {
		if err := db.Create(u).Error; err != nil {
			log.Fatal(err)
		}
	}

	log.Println("Creating addresses...")
	gym := address.Address{CoachID: coachA.ID, Name: "Main gym", Detail: "12 River St"}
	court := address.Address{CoachID: coachB.ID, Name: "Tennis court", Detail: "3 Hill Rd"}
	for _, a := range []*address.Address{&gym, &court} {
		if err := db.Create(a).Error; err != nil {
			log.Fatal(err)
		}
	}

	log.Println("Binding relationships...")
	relService := relationship.NewService(db)
	relAM, err := relService.Bind(ctx, studentM.ID, coachA.ID)
	if err != nil {
		log.Fatal(err)
	}
	relAN, err := relService.Bind(ctx, studentN.ID, coachA.ID)
	if err != nil {
		log.Fatal(err)
	}
	relBO, err := relService.Bind(ctx, studentO.ID, coachB.ID)
	if err != nil {
		log.Fatal(err)
	}
	db.Model(&relationship.Relationship{}).Where("id = ?", relBO.ID).Update("timezone", "Europe/Moscow")

	log.Println("Creating categories and credits...")
	tech, err := relService.CreateCategory(ctx, coachA.ID, "Technique")
	if err != nil {
		log.Fatal(err)
	}
	defaultCategory, err := relService.DefaultCategory(ctx, coachA.ID)
	if err != nil {
		log.Fatal(err)
	}
	defaultCat := defaultCategory.ID

	expire := time.Now().AddDate(0, 3, 0)
	for _, seed := range []struct {
		relID int64
		catID int64
		count int
	}{
		{relAM.ID, defaultCat, 10},
		{relAM.ID, tech.ID, 4},
		{relAN.ID, defaultCat, 2},
	} {
		if _, err := relService.Adjust(ctx, coachA.ID, seed.relID, seed.catID, seed.count, &expire); err != nil {
			log.Fatal(err)
		}
	}

	log.Println("Creating card template and card...")
	cardService := card.NewService(db)
	lessons := 8
	tpl, err := cardService.CreateTemplate(ctx, coachB.ID, "8-lesson pass", "blue", &lessons, 60)
	if err != nil {
		log.Fatal(err)
	}
	if _, err := cardService.Issue(ctx, tpl.ID, relBO.ID); err != nil {
		log.Fatal(err)
	}

	log.Println("Creating a pending booking...")
	bookingService := booking.NewService(db, relService, cardService,
		auth.NewDirectory(db), address.NewDirectory(db), nil)
	start := time.Now().Add(48 * time.Hour).Truncate(time.Hour)
	end := start.Add(time.Hour)
	if _, err := bookingService.Create(ctx, studentM.ID, booking.CreateRequest{
		RelationshipID: relAM.ID,
		AddressID:      &gym.ID,
		StartTime:      start,
		EndTime:        end,
		CategoryID:     &defaultCat,
	}); err != nil {
		log.Fatal(err)
	}

	log.Println("Creating an open group session...")
	groupService := group.NewService(db, relService, nil)
	sess, err := groupService.CreateSession(ctx, coachA.ID, group.CreateSessionRequest{
		CategoryID:      tech.ID,
		Title:           "Saturday technique drills",
		StartTime:       start.Add(72 * time.Hour),
		EndTime:         start.Add(74 * time.Hour),
		CapacityMin:     2,
		CapacityMax:     6,
		PriceMode:       "credit",
		LessonCost:      1,
		AutoConfirm:     true,
		EnrollmentScope: "students",
	})
	if err != nil {
		log.Fatal(err)
	}
	if _, err := groupService.Publish(ctx, coachA.ID, sess.ID); err != nil {
		log.Fatal(err)
	}

	log.Println("Seed completed")
}
