//go:build ignore

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fenilmodi00/ipo-allotment/config"
	"github.com/fenilmodi00/ipo-allotment/database"
	"github.com/fenilmodi00/ipo-allotment/services"
	"github.com/fenilmodi00/ipo-allotment/shared"
)

func main() {
	fmt.Printf("🏥 Allotment Engine Health Check - %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Println(strings.Repeat("=", 50))

	cfg := config.LoadConfig()
	registrars := services.NewRegistrarService()
	automation := services.NewAutomationService(services.NewIPOMasterService(nil), registrars, nil, nil, 0)
	fetcher := shared.NewCollyFetcher(cfg.GetDiscoveryTimeout())

	healthScore := 0
	totalTests := 0

	// Registrar portals: each listing page must load and list at least one IPO
	for _, registrar := range registrars.DiscoverableRegistrars() {
		totalTests++
		fmt.Printf("📡 %s portal: ", registrars.Info(registrar).Name)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.GetDiscoveryTimeout())
		response, err := fetcher.Get(ctx, registrars.DiscoveryURL(registrar), nil)
		cancel()

		switch {
		case err != nil:
			fmt.Printf("❌ FAILED (%v)\n", err)
		case !response.OK():
			fmt.Printf("❌ FAILED (status %d)\n", response.StatusCode)
		default:
			names, err := automation.ExtractIPONames(response.Body)
			if err != nil || len(names) == 0 {
				fmt.Println("⚠️  REACHABLE (no IPOs listed, page may be JS-rendered)")
				continue
			}
			fmt.Printf("✅ OK (%d IPOs)\n", len(names))
			healthScore++
		}
	}

	// Database
	if cfg.DatabaseURL != "" {
		totalTests++
		fmt.Print("🗄️  Database: ")
		if err := database.Connect(cfg.DatabaseURL); err != nil {
			fmt.Printf("❌ FAILED (%v)\n", err)
		} else {
			repository := database.NewAllotmentRepository(database.DB)
			if entries, err := repository.LoadIPOs(context.Background()); err != nil {
				fmt.Printf("❌ FAILED (%v)\n", err)
			} else {
				fmt.Printf("✅ OK (%d stored IPOs)\n", len(entries))
				healthScore++
			}
			database.Close()
		}
	}

	// Overall health
	fmt.Println(strings.Repeat("-", 50))
	healthPercent := float64(healthScore) / float64(totalTests) * 100

	if healthScore == totalTests {
		fmt.Printf("🎉 SYSTEM HEALTHY: %d/%d checks passed (%.0f%%)\n", healthScore, totalTests, healthPercent)
	} else if healthScore >= totalTests/2 {
		fmt.Printf("⚠️  SYSTEM DEGRADED: %d/%d checks passed (%.0f%%)\n", healthScore, totalTests, healthPercent)
	} else {
		fmt.Printf("❌ SYSTEM UNHEALTHY: %d/%d checks passed (%.0f%%)\n", healthScore, totalTests, healthPercent)
	}
}
