package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// FTPConfig holds the connection settings for one emitter's FTP drop.
type FTPConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	Directory string
}

// DriveConfig holds the export URLs for one emitter's cloud-drive folder.
// Files are fetched with plain authenticated GETs against BaseURL/<filename>.
type DriveConfig struct {
	BaseURL   string
	AuthToken string
}

type AppConfig struct {
	Port         string
	DatabasePath string
	LogLevel     string

	InputDir    string
	OutputDir   string
	TemplateDir string

	MasterFilePath   string
	BackupKeepCount  int
	ExcludeISINsPath string

	MorningstarTemplatePath string
	SIXTemplatePath         string

	MaxUploadSizeBytes int64

	// Source fetching
	SourceMode     string // "local", "ftp" or "drive"
	Emitters       []string
	FTPConfigs     map[string]FTPConfig
	DriveConfigs   map[string]DriveConfig
	FetchTimeout   time.Duration
	FetchRetries   int
	FetchRetryBase time.Duration
	MaxWorkers     int

	EmailServiceProvider string

	SMTPServer   string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string

	MailgunDomain        string
	MailgunPrivateAPIKey string

	SenderEmail string
	SenderName  string
}

var Cfg *AppConfig

// Emitters whose NAV drops we pull by default.
var defaultEmitters = []string{"ETPCAP2", "HFMX", "IACAP", "CIX", "DCXPD"}

func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		log.Println("Info: No .env file found or error loading .env file. Relying on OS environment variables and defaults. Error (if any):", errEnv)
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	maxUploadSizeBytesStr := getEnv("MAX_UPLOAD_SIZE_BYTES", "10485760")
	maxUploadSizeBytes, err := strconv.ParseInt(maxUploadSizeBytesStr, 10, 64)
	if err != nil {
		log.Printf("WARNING: Invalid MAX_UPLOAD_SIZE_BYTES format '%s'. Using default 10MB. Error: %v", maxUploadSizeBytesStr, err)
		maxUploadSizeBytes = 10 * 1024 * 1024
	}

	emitters := defaultEmitters
	if raw := getEnv("EMITTERS", ""); raw != "" {
		emitters = nil
		for _, e := range strings.Split(raw, ",") {
			if e = strings.TrimSpace(e); e != "" {
				emitters = append(emitters, e)
			}
		}
	}

	ftpConfigs := make(map[string]FTPConfig)
	driveConfigs := make(map[string]DriveConfig)
	for _, emitter := range emitters {
		prefix := strings.ToUpper(emitter)
		if host := getEnv(prefix+"_FTP_HOST", ""); host != "" {
			ftpConfigs[emitter] = FTPConfig{
				Host:      host,
				Port:      getEnvAsInt(prefix+"_FTP_PORT", 21),
				User:      getEnv(prefix+"_FTP_USER", ""),
				Password:  getEnv(prefix+"_FTP_PASSWORD", ""),
				Directory: getEnv(prefix+"_FTP_DIRECTORY", "/NAVs_Consolidated"),
			}
		}
		if baseURL := getEnv(prefix+"_DRIVE_BASE_URL", ""); baseURL != "" {
			driveConfigs[emitter] = DriveConfig{
				BaseURL:   baseURL,
				AuthToken: getEnv(prefix+"_DRIVE_AUTH_TOKEN", ""),
			}
		}
	}

	templateDir := getEnv("TEMPLATE_DIR", "input/template")

	Cfg = &AppConfig{
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./navhub.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		InputDir:    getEnv("INPUT_DIR", "input"),
		OutputDir:   getEnv("OUTPUT_DIR", "output"),
		TemplateDir: templateDir,

		MasterFilePath:   getEnv("MASTER_FILE_PATH", "data/Series_Qualitative_Data.csv"),
		BackupKeepCount:  getEnvAsInt("BACKUP_KEEP_COUNT", 5),
		ExcludeISINsPath: getEnv("EXCLUDE_ISINS_PATH", templateDir+"/Exclude ISINs.csv"),

		MorningstarTemplatePath: getEnv("MORNINGSTAR_TEMPLATE_PATH", templateDir+"/Morningstar Performance Template.xlsx"),
		SIXTemplatePath:         getEnv("SIX_TEMPLATE_PATH", templateDir+"/LAM_SFI_Price -SIX Financial Template.xlsx"),

		MaxUploadSizeBytes: maxUploadSizeBytes,

		SourceMode:     strings.ToLower(getEnv("SOURCE_MODE", "local")),
		Emitters:       emitters,
		FTPConfigs:     ftpConfigs,
		DriveConfigs:   driveConfigs,
		FetchTimeout:   getEnvAsDuration("FETCH_TIMEOUT", 30*time.Second),
		FetchRetries:   getEnvAsInt("FETCH_RETRIES", 3),
		FetchRetryBase: getEnvAsDuration("FETCH_RETRY_BASE", 2*time.Second),
		MaxWorkers:     getEnvAsInt("MAX_WORKERS", 5),

		EmailServiceProvider: getEnv("EMAIL_SERVICE_PROVIDER", "mock"),

		SMTPServer:   getEnv("SMTP_SERVER", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		MailgunDomain:        getEnv("MAILGUN_DOMAIN", ""),
		MailgunPrivateAPIKey: getEnv("MAILGUN_PRIVATE_API_KEY", ""),

		SenderEmail: getEnv("SENDER_EMAIL", "noreply@example.com"),
		SenderName:  getEnv("SENDER_NAME", "NAVHub"),
	}

	switch Cfg.SourceMode {
	case "local", "ftp", "drive":
	default:
		log.Fatalf("FATAL: SOURCE_MODE must be one of local, ftp, drive; got %q", Cfg.SourceMode)
	}
	if Cfg.SourceMode == "ftp" && len(Cfg.FTPConfigs) == 0 {
		log.Fatalf("FATAL: SOURCE_MODE is 'ftp' but no <EMITTER>_FTP_HOST variables are set.")
	}
	if Cfg.SourceMode == "drive" && len(Cfg.DriveConfigs) == 0 {
		log.Fatalf("FATAL: SOURCE_MODE is 'drive' but no <EMITTER>_DRIVE_BASE_URL variables are set.")
	}

	if Cfg.EmailServiceProvider == "mailgun" {
		if Cfg.MailgunDomain == "" {
			log.Fatalf("FATAL: MAILGUN_DOMAIN is required when EMAIL_SERVICE_PROVIDER is 'mailgun', but it's not set in environment or .env file.")
		}
		if Cfg.MailgunPrivateAPIKey == "" {
			log.Fatalf("FATAL: MAILGUN_PRIVATE_API_KEY is required when EMAIL_SERVICE_PROVIDER is 'mailgun', but it's not set in environment or .env file.")
		}
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, SourceMode=%s, EmailProvider=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.SourceMode, Cfg.EmailServiceProvider)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}
