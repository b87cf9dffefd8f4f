package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port         string
	DBPath       string
	DBDSN        string // when set, postgres is used instead of sqlite
	EventFeedURL string
	JWTSecret    string
	VerifyToken  string

	// Optional seed credentials. When present they are written to the
	// credentials record on first start so the UI works out of the box.
	WhatsAppToken             string
	PhoneNumberID             string
	WhatsAppBusinessAccountID string
	BusinessName              string
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: Error loading .env file")
	}

	return &Config{
		Port:         getEnv("PORT", "8080"),
		DBPath:       getEnv("DB_PATH", "./nebula.db"),
		DBDSN:        getEnv("DB_DSN", ""),
		EventFeedURL: getEnv("EVENT_FEED_URL", ""),
		JWTSecret:    getEnv("JWT_SECRET", "nebula-dev-secret"),
		VerifyToken:  getEnv("VERIFY_TOKEN", ""),

		WhatsAppToken:             getEnv("WHATSAPP_TOKEN", ""),
		PhoneNumberID:             getEnv("PHONE_NUMBER_ID", ""),
		WhatsAppBusinessAccountID: getEnv("WABA_ID", ""),
		BusinessName:              getEnv("BUSINESS_NAME", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
