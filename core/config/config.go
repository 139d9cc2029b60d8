// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

// Package config holds the service settings read from the environment
package config

import (
	"fmt"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/restgen/core/csql"
	"github.com/relabs-tech/restgen/core/kss"
	"github.com/relabs-tech/restgen/core/logger"
)

// Service holds the configuration for a generated service
//
// use DB_URL="host=localhost port=5432 user=postgres dbname=postgres sslmode=disable"
// or the discrete DB_HOST, DB_PORT, DB_USER, DB_PASS and DB_NAME
type Service struct {
	Name        string `env:"SERVICE_NAME,default=restgen" description:"service name added to every log line"`
	LogLevel    string `env:"LOG_LEVEL,default=trace" description:"logrus level"`
	APIPrefix   string `env:"API_PREFIX,default=/api" description:"path prefix of the REST API"`
	TemplateDir string `env:"TEMPLATE_DIR,default=./views" description:"directory with the view templates"`
	StaticDir   string `env:"STATIC_DIR" description:"directory served as static files, optional"`
	Port        int    `env:"PORT,default=3000" description:"port to listen on"`

	DBClient   string `env:"DB_CLIENT,default=postgres" description:"postgres or mysql"`
	DBURL      string `env:"DB_URL" description:"connection string, takes precedence over the discrete parameters"`
	DBHost     string `env:"DB_HOST,default=localhost"`
	DBPort     int    `env:"DB_PORT"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASS"`
	DBName     string `env:"DB_NAME"`
	DBSSLMode  string `env:"DB_SSLMODE"`

	KssDriver    string `env:"KSS_DRIVER" description:"Local, AWSS3 or empty for no file storage"`
	KssLocalPath string `env:"KSS_LOCAL_PATH,default=./files" description:"base path of the Local driver"`
	KssMountPath string `env:"KSS_MOUNT_PATH,default=/files" description:"path the Local driver's files are served from"`
	KssS3Bucket  string `env:"KSS_S3_BUCKET"`
	KssS3Prefix  string `env:"KSS_S3_PREFIX"`

	AWSRegion          string `env:"AWS_REGION,default=eu-central-1"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`

	KafkaBrokers string `env:"KAFKA_BROKERS" description:"comma separated list of brokers, enables kafka notifications"`
	KafkaTopic   string `env:"KAFKA_TOPIC,default=restgen"`
	SQSQueueURL  string `env:"SQS_QUEUE_URL" description:"enables SQS notifications"`
}

// Load decodes the service settings from the environment
func Load() (*Service, error) {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		return nil, fmt.Errorf("cannot decode service configuration: %w", err)
	}
	if err := service.validate(); err != nil {
		return nil, err
	}
	return service, nil
}

func (s *Service) validate() error {
	if s.DBClient != csql.ClientPostgres && s.DBClient != csql.ClientMySQL {
		return fmt.Errorf("unsupported DB_CLIENT '%s'", s.DBClient)
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", s.Port)
	}
	switch kss.DriverType(s.KssDriver) {
	case kss.None, kss.DriverTypeLocal:
	case kss.DriverTypeAWSS3:
		if s.KssS3Bucket == "" {
			return fmt.Errorf("KSS_DRIVER %s requires KSS_S3_BUCKET", s.KssDriver)
		}
	default:
		return fmt.Errorf("unknown KSS_DRIVER '%s'", s.KssDriver)
	}
	if !strings.HasPrefix(s.APIPrefix, "/") {
		return fmt.Errorf("API_PREFIX must start with a slash, got '%s'", s.APIPrefix)
	}
	return nil
}

// Level returns the parsed log level
func (s *Service) Level() (logrus.Level, error) {
	return logger.ParseLevel(s.LogLevel)
}

// Addr returns the listen address
func (s *Service) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// DBConfig returns the connection parameters for csql.Open
func (s *Service) DBConfig() csql.Config {
	return csql.Config{
		Client:   s.DBClient,
		URL:      s.DBURL,
		Host:     s.DBHost,
		Port:     s.DBPort,
		User:     s.DBUser,
		Password: s.DBPassword,
		Database: s.DBName,
		SSLMode:  s.DBSSLMode,
	}
}

// KssConfiguration returns the file storage configuration for kss.New
func (s *Service) KssConfiguration() kss.Configuration {
	config := kss.Configuration{DriverType: kss.DriverType(s.KssDriver)}
	switch config.DriverType {
	case kss.DriverTypeLocal:
		config.LocalConfiguration = &kss.LocalConfiguration{BasePath: s.KssLocalPath}
	case kss.DriverTypeAWSS3:
		config.S3Configuration = &kss.S3Configuration{
			AWSBucketName: s.KssS3Bucket,
			AWSRegion:     s.AWSRegion,
			AccessID:      s.AWSAccessKeyID,
			AccessKey:     s.AWSSecretAccessKey,
			KeyPrefix:     s.KssS3Prefix,
		}
	}
	return config
}

// Brokers returns the configured kafka brokers
func (s *Service) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(s.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
