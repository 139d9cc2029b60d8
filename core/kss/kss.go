// kss package provides storage for uploaded files outside of the database.
// There are currently two backends: a local file system and AWS S3.
package kss

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Driver defines the interface for the KSS service
type Driver interface {
	// Put stores body under key, replacing any previous content
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// DriverType represents the different type of KSS Drivers
type DriverType string

// DriverTypeLocal is the local filesystem implementation of the KSS service
const DriverTypeLocal DriverType = "Local"

// DriverTypeAWSS3 is the AWS S3 implementation of the KSS service
const DriverTypeAWSS3 DriverType = "AWSS3"

// None is used when there is no KSS implementation
const None DriverType = ""

// Configuration contains the configuration for the KSS service
type Configuration struct {
	DriverType         DriverType
	LocalConfiguration *LocalConfiguration
	S3Configuration    *S3Configuration
}

// LocalConfiguration contains the configuration for the local filesystem KSS service
type LocalConfiguration struct {
	BasePath string
}

// S3Configuration contains the configuration for the S3 KSS service. Empty credentials
// fall back to the default AWS credential chain.
type S3Configuration struct {
	AWSBucketName string
	AWSRegion     string
	AccessID      string
	AccessKey     string
	KeyPrefix     string
}

// New returns the driver described by config, nil for None
func New(ctx context.Context, config Configuration) (Driver, error) {
	switch config.DriverType {
	case None:
		return nil, nil
	case DriverTypeLocal:
		if config.LocalConfiguration == nil {
			return nil, fmt.Errorf("driver %s requires a local configuration", config.DriverType)
		}
		f, err := NewLocalFilesystem(*config.LocalConfiguration)
		if err != nil {
			return nil, err
		}
		return f, nil
	case DriverTypeAWSS3:
		if config.S3Configuration == nil {
			return nil, fmt.Errorf("driver %s requires an S3 configuration", config.DriverType)
		}
		s, err := NewS3(ctx, *config.S3Configuration)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown kss driver type '%s'", config.DriverType)
}

func validKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("'..' is not allowed in a key")
	}
	return nil
}
