package config // package config loads application configuration from environment variables

import (
    "log"  // log is used to report configuration errors and halt execution
    "os"   // os provides access to environment variables
    "time" // time expresses the offer window and sweep interval
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The admission policy parameters – how long an
// offer stays open and how often the background sweep runs – live here so
// that operators can tune them without a rebuild.
type Config struct {
    Env           string        // application environment (e.g. "dev", "prod")
    Port          string        // HTTP port to listen on
    DBUser        string        // database username
    DBPass        string        // database password (optional)
    DBHost        string        // database host address
    DBPort        string        // database port number
    DBName        string        // database name
    JWTSecret     string        // secret used to verify caller identity tokens
    OfferWindow   time.Duration // how long an admitted user may complete a purchase
    SweepInterval time.Duration // pause between background scheduler passes
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  The policy
// durations are optional and fall back to sensible defaults: a 15 minute
// offer window and a 5 second sweep.
func Load() Config {
    return Config{
        Env:           must("APP_ENV"),      // environment (dev/test/prod)
        Port:          must("APP_PORT"),     // port to bind the HTTP server
        DBUser:        must("DB_USER"),      // database user
        DBPass:        os.Getenv("DB_PASS"), // database password (empty allowed)
        DBHost:        must("DB_HOST"),      // database host
        DBPort:        must("DB_PORT"),      // database port
        DBName:        must("DB_NAME"),      // database name
        JWTSecret:     must("JWT_SECRET"),   // secret used for verifying JWTs
        OfferWindow:   time.Duration(envInt("OFFER_WINDOW_MIN", 15)) * time.Minute, // offer lifetime in minutes
        SweepInterval: envDur("SWEEP_INTERVAL", 5*time.Second),                     // staleness bound for the sweeper
    }
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}
