// Command storekit runs a small upload service wired through the provider
// registry. It demonstrates the full composition: environment config,
// descriptor registration, factory table, and the variant pipeline serving
// multipart uploads over HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/storekit/storekit/config"
	"github.com/storekit/storekit/observability"
	"github.com/storekit/storekit/provider"
	"github.com/storekit/storekit/upload"
	"github.com/storekit/storekit/upload/storage"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := observability.Init(observability.Config{
		ServiceName:    "storekit",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		EnableTracing:  true,
	}); err != nil {
		log.Fatalf("Failed to initialize observability: %v", err)
	}
	upload.EnableObservability()

	registry := provider.NewRegistry()
	for _, d := range cfg.Descriptors() {
		registry.Register(d)
	}

	resolver := provider.NewResolver(registry)
	registerFactories(resolver)

	// Hot-reload image options from options.json while running
	if watcher, err := config.WatchOptions(registry, "options.json"); err == nil {
		defer watcher.Close()
	} else {
		log.Printf("Options watcher disabled: %v", err)
	}

	def, ok := registry.Default()
	if !ok {
		log.Fatal("No storage provider enabled")
	}
	log.Printf("Default provider: %s (%s)", def.ID, def.Name)

	mux := http.NewServeMux()
	mux.HandleFunc("/upload", uploadHandler(registry, resolver))

	fmt.Println("storekit demo running at http://localhost:8083/upload")
	fmt.Println("Try:")
	fmt.Println("  - POST /upload (multipart: file, optional fields: category, entity, provider)")

	server := &http.Server{
		Addr:         ":8083",
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	log.Fatal(server.ListenAndServe())
}

func registerFactories(resolver *provider.Resolver) {
	resolver.RegisterFactory("local", func(d provider.Descriptor) (upload.Executor, error) {
		opts, ok := d.Options.(config.LocalOptions)
		if !ok {
			return nil, &upload.ConfigurationError{Subject: d.ID, Reason: "local descriptor needs config.LocalOptions"}
		}
		store, err := storage.NewLocal(opts.Root, opts.BaseURL)
		if err != nil {
			return nil, err
		}
		return upload.NewBlobExecutor(d.ID, storage.NewObservable(store, "local"), opts.Images), nil
	})

	resolver.RegisterFactory("s3", func(d provider.Descriptor) (upload.Executor, error) {
		opts, ok := d.Options.(config.S3Options)
		if !ok {
			return nil, &upload.ConfigurationError{Subject: d.ID, Reason: "s3 descriptor needs config.S3Options"}
		}
		store, err := storage.NewS3(context.Background(), storage.S3Config{
			Bucket:          opts.Bucket,
			Region:          opts.Region,
			AccessKeyID:     opts.AccessKey,
			SecretAccessKey: opts.SecretKey,
			Endpoint:        opts.Endpoint,
			ForcePathStyle:  opts.PathStyle,
			BaseURL:         opts.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		return upload.NewBlobExecutor(d.ID, storage.NewObservable(store, "s3"), opts.Images), nil
	})

	resolver.RegisterFactory("sftp", func(d provider.Descriptor) (upload.Executor, error) {
		opts, ok := d.Options.(config.SFTPOptions)
		if !ok {
			return nil, &upload.ConfigurationError{Subject: d.ID, Reason: "sftp descriptor needs config.SFTPOptions"}
		}
		store, err := storage.NewSFTP(storage.SFTPConfig{
			Host:          opts.Host,
			Port:          opts.Port,
			User:          opts.User,
			Password:      opts.Password,
			PrivateKeyPEM: opts.PrivateKeyPEM,
			Root:          opts.Root,
			BaseURL:       opts.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		return upload.NewBlobExecutor(d.ID, storage.NewObservable(store, "sftp"), opts.Images), nil
	})

	resolver.RegisterFactory("memory", func(d provider.Descriptor) (upload.Executor, error) {
		opts, _ := d.Options.(config.MemoryOptions)
		return upload.NewBlobExecutor(d.ID, storage.NewObservable(storage.NewMemory(), "memory"), opts.Images), nil
	})
}

func uploadHandler(registry *provider.Registry, resolver *provider.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, "Invalid multipart form", http.StatusBadRequest)
			return
		}
		f, fh, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "No file uploaded", http.StatusBadRequest)
			return
		}
		f.Close() // the pipeline reopens the part through the header

		desc, ok := pickDescriptor(registry, r.FormValue("provider"))
		if !ok {
			http.Error(w, "No storage provider available", http.StatusServiceUnavailable)
			return
		}

		category := r.FormValue("category")
		if category == "" {
			category = "General"
		}

		type result struct {
			Primary  *upload.FileEntry  `json:"primary"`
			Variants []upload.FileEntry `json:"variants,omitempty"`
		}
		res, err := provider.WithExecutorResult(r.Context(), resolver, desc, func(exec upload.Executor) (result, error) {
			primary, variants, err := exec.CreateWithVariants(r.Context(), upload.MultipartFile(fh), category, r.FormValue("entity"))
			return result{Primary: primary, Variants: variants}, err
		})
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(res); err != nil {
			log.Printf("Failed to write response: %v", err)
		}
	}
}

func pickDescriptor(registry *provider.Registry, id string) (provider.Descriptor, bool) {
	if id != "" {
		return registry.ByID(id)
	}
	return registry.Default()
}

func statusFor(err error) int {
	var validation *upload.ValidationError
	var notFound *upload.NotFoundError
	var security *upload.SecurityError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &security):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
