package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"group-ride/internal/config"
	groupservice "group-ride/internal/group-service"
	"group-ride/internal/group-service/core/services"
	"group-ride/internal/mylogger"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: app <group-service|rider|token> [flags]")
}

func loadConfig(path string) *config.Config {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.NewFromYAML(path)
	} else {
		cfg, err = config.New()
	}
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return cfg
}

func main() {
	groupCmd := flag.NewFlagSet("group-service", flag.ExitOnError)
	groupConfig := groupCmd.String("config", "", "path to a YAML config file")
	inMemory := groupCmd.Bool("memory", false, "keep memberships and chat in memory instead of PostgreSQL")

	riderCmd := flag.NewFlagSet("rider", flag.ExitOnError)
	riderConfig := riderCmd.String("config", "", "path to a YAML config file")
	groupID := riderCmd.String("group", "", "group ride to join")
	userID := riderCmd.String("user", "", "rider user id")
	userName := riderCmd.String("name", "", "display name")
	token := riderCmd.String("token", "", "bearer token; issued locally from JWT_SECRET when empty")
	lat := riderCmd.Float64("lat", 37.5665, "starting latitude")
	lng := riderCmd.Float64("lng", 126.9780, "starting longitude")
	speed := riderCmd.Float64("speed", 6, "speed in meters per second")
	heading := riderCmd.Float64("heading", 90, "heading in degrees")

	tokenCmd := flag.NewFlagSet("token", flag.ExitOnError)
	tokenConfig := tokenCmd.String("config", "", "path to a YAML config file")
	tokenUser := tokenCmd.String("user", "", "rider user id")
	tokenTTL := tokenCmd.Duration("ttl", 24*time.Hour, "token lifetime")
	tokenAdmin := tokenCmd.Bool("admin", false, "issue an ADMIN token for /admin/overview")

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "group-service":
		groupCmd.Parse(os.Args[2:])
		cfg := loadConfig(*groupConfig)
		mylog := mylogger.New("group-service", cfg.Log.Level)
		mylog.Action("group_service_started").Info("Group service starting up", "port", cfg.Srv.GroupServicePort, "memory", *inMemory)

		if err := groupservice.Execute(context.Background(), mylog, cfg, *inMemory); err != nil {
			os.Exit(1)
		}

	case "rider":
		riderCmd.Parse(os.Args[2:])
		cfg := loadConfig(*riderConfig)
		mylog := mylogger.New("rider", cfg.Log.Level)

		if *groupID == "" || *userID == "" {
			log.Fatal("group and user are required")
		}
		sim := simulation{
			groupID:   *groupID,
			userID:    *userID,
			userName:  *userName,
			token:     *token,
			latitude:  *lat,
			longitude: *lng,
			speed:     *speed,
			heading:   *heading,
		}
		if err := sim.run(context.Background(), mylog, cfg); err != nil {
			mylog.Error("Rider simulation failed", err)
			os.Exit(1)
		}

	case "token":
		tokenCmd.Parse(os.Args[2:])
		cfg := loadConfig(*tokenConfig)
		if *tokenUser == "" {
			log.Fatal("user is required")
		}
		auth := services.NewAuthService(cfg.App.PublicJwtSecret)
		issue := auth.IssueToken
		if *tokenAdmin {
			issue = auth.IssueAdminToken
		}
		t, err := issue(*tokenUser, *tokenTTL)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(t)

	default:
		usage()
		os.Exit(1)
	}
}
