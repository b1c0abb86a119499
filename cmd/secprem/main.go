package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/securepremium/securepremium/internal/fingerprint"
	"github.com/securepremium/securepremium/internal/pricing"
	"github.com/securepremium/securepremium/internal/risk"
)

// version is overridden at release time via -ldflags "-X main.version=...".
var version = "dev"

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "secprem",
	Short: "SecurePremium pricing and risk workbench",
	Long: `secprem runs the SecurePremium risk and pricing cores locally.

It assesses device telemetry files, prices coverage for a given risk
profile, and inspects coverage tiers without needing a running server.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.secprem")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.secprem/config.yaml)")

	rootCmd.AddCommand(assessCmd)
	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(estimateCmd)
	rootCmd.AddCommand(policyCostCmd)
	rootCmd.AddCommand(tiersCmd)
	rootCmd.AddCommand(fingerprintCmd)
	rootCmd.AddCommand(versionCmd)
}

// newLogger builds a quiet console logger for CLI use.
func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	logger, _ := cfg.Build()
	return logger
}

// ── assess ───────────────────────────────────────────────────────────────────

var (
	assessDeviceID string
	assessMetrics  string
	assessBaseline string
	assessJSON     bool
)

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Run a risk assessment from a telemetry JSON file",
	Long: `Assess reads device telemetry from a JSON file and runs the risk
calculator locally:

  secprem assess --device laptop-001 --metrics telemetry.json

The metrics file uses the same shape as the POST /assessments API
payload's "metrics" field. An optional --baseline file supplies
historical per-metric statistics for deviation scoring.`,
	RunE: runAssess,
}

func init() {
	assessCmd.Flags().StringVar(&assessDeviceID, "device", "", "device identifier (required)")
	assessCmd.Flags().StringVar(&assessMetrics, "metrics", "", "path to telemetry JSON file (required)")
	assessCmd.Flags().StringVar(&assessBaseline, "baseline", "", "path to historical baseline JSON file")
	assessCmd.Flags().BoolVar(&assessJSON, "json", false, "output JSON instead of text")
	assessCmd.MarkFlagRequired("device")  //nolint:errcheck
	assessCmd.MarkFlagRequired("metrics") //nolint:errcheck
}

func runAssess(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(assessMetrics)
	if err != nil {
		return fmt.Errorf("read metrics file: %w", err)
	}
	var metrics risk.Metrics
	if err := json.Unmarshal(raw, &metrics); err != nil {
		return fmt.Errorf("parse metrics file: %w", err)
	}

	var baseline risk.Baseline
	if assessBaseline != "" {
		raw, err := os.ReadFile(assessBaseline)
		if err != nil {
			return fmt.Errorf("read baseline file: %w", err)
		}
		if err := json.Unmarshal(raw, &baseline); err != nil {
			return fmt.Errorf("parse baseline file: %w", err)
		}
	}

	logger := newLogger()
	calculator := risk.NewCalculator(fingerprint.NewService(nil, logger), logger)
	assessment := calculator.CalculateRisk(assessDeviceID, &metrics, baseline, nil)

	if assessJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(assessment)
	}

	fmt.Printf("Device:          %s\n", assessment.DeviceID)
	fmt.Printf("Overall Risk:    %.4f (%s)\n", assessment.OverallRiskScore, risk.Categorize(assessment.OverallRiskScore))
	fmt.Printf("Behavioral:      %.4f\n", assessment.BehavioralRisk)
	fmt.Printf("Hardware:        %.4f\n", assessment.HardwareRisk)
	fmt.Printf("Network:         %.4f\n", assessment.NetworkRisk)
	fmt.Printf("Anomaly:         %.4f\n", assessment.AnomalyScore)
	fmt.Printf("Confidence:      %.4f\n", assessment.ConfidenceLevel)
	if len(assessment.ThreatIndicators) > 0 {
		fmt.Printf("Indicators:      %s\n", strings.Join(assessment.ThreatIndicators, ", "))
	}
	return nil
}

// ── quote ────────────────────────────────────────────────────────────────────

var (
	quoteDeviceID   string
	quoteRisk       float64
	quoteConfidence float64
	quoteReputation float64
	quoteTier       string
	quoteMonths     int
	quoteDevices    int
	quoteJSON       bool
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Price coverage for a risk profile",
	Long: `Quote prices coverage locally for a given risk score:

  secprem quote --device laptop-001 --risk 0.42 --confidence 0.9 --tier standard

Pass --devices to apply fleet volume discounts, and --reputation to
apply network reputation pricing. Omit --reputation for a neutral
device.`,
	RunE: runQuote,
}

func init() {
	quoteCmd.Flags().StringVar(&quoteDeviceID, "device", "local", "device identifier")
	quoteCmd.Flags().Float64Var(&quoteRisk, "risk", 0, "overall risk score in [0, 1] (required)")
	quoteCmd.Flags().Float64Var(&quoteConfidence, "confidence", 1.0, "assessment confidence in [0, 1]")
	quoteCmd.Flags().Float64Var(&quoteReputation, "reputation", -1, "network reputation in [0, 1]; negative = unknown")
	quoteCmd.Flags().StringVar(&quoteTier, "tier", "standard", "coverage tier: basic, standard, or premium")
	quoteCmd.Flags().IntVar(&quoteMonths, "months", 12, "policy duration in months")
	quoteCmd.Flags().IntVar(&quoteDevices, "devices", 1, "device count for volume pricing")
	quoteCmd.Flags().BoolVar(&quoteJSON, "json", false, "output JSON instead of text")
	quoteCmd.MarkFlagRequired("risk") //nolint:errcheck
}

func runQuote(cmd *cobra.Command, args []string) error {
	engine := pricing.NewEngine(newLogger())

	assessment := &risk.Assessment{
		DeviceID:         quoteDeviceID,
		OverallRiskScore: quoteRisk,
		ConfidenceLevel:  quoteConfidence,
	}
	var reputation *float64
	if quoteReputation >= 0 {
		reputation = &quoteReputation
	}

	quote, err := engine.GenerateQuote(quoteDeviceID, assessment, reputation, quoteTier, quoteMonths)
	if err != nil {
		return err
	}
	if quoteDevices > 1 {
		quote = engine.ApplyVolumeDiscount(quote, quoteDevices)
	}

	if quoteJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(quote)
	}

	fmt.Printf("Device:              %s\n", quote.DeviceID)
	fmt.Printf("Coverage:            %s\n", quote.CoverageLevel)
	fmt.Printf("Annual Premium:      $%.2f\n", quote.AnnualPremiumUSD)
	fmt.Printf("Monthly Premium:     $%.2f\n", quote.MonthlyPremiumUSD)
	fmt.Printf("Risk Multiplier:     %.4f\n", quote.RiskAdjustment)
	fmt.Printf("Reputation Discount: %.4f\n", quote.ReputationDiscount)
	fmt.Printf("Valid Until:         %s\n", quote.QuoteValidUntil.Format("2006-01-02"))
	return nil
}

// ── estimate ─────────────────────────────────────────────────────────────────

var (
	estDevices    int
	estRisk       float64
	estReputation float64
	estDist       string
	estJSON       bool
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate annual cost for a device fleet",
	Long: `Estimate prices an entire fleet across a coverage distribution:

  secprem estimate --devices 200 --risk 0.4 --reputation 0.6 \
      --dist basic=0.3,standard=0.5,premium=0.2

Distribution fractions must sum to 1.`,
	RunE: runEstimate,
}

func init() {
	estimateCmd.Flags().IntVar(&estDevices, "devices", 0, "total device count (required)")
	estimateCmd.Flags().Float64Var(&estRisk, "risk", 0.5, "average risk score in [0, 1]")
	estimateCmd.Flags().Float64Var(&estReputation, "reputation", 0.5, "average reputation in [0, 1]")
	estimateCmd.Flags().StringVar(&estDist, "dist", "standard=1.0", "coverage distribution as tier=fraction pairs")
	estimateCmd.Flags().BoolVar(&estJSON, "json", false, "output JSON instead of text")
	estimateCmd.MarkFlagRequired("devices") //nolint:errcheck
}

func parseDistribution(s string) (map[string]float64, error) {
	dist := make(map[string]float64)
	for _, pair := range strings.Split(s, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid distribution entry %q, want tier=fraction", pair)
		}
		frac, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid fraction in %q: %w", pair, err)
		}
		dist[parts[0]] = frac
	}
	return dist, nil
}

func runEstimate(cmd *cobra.Command, args []string) error {
	dist, err := parseDistribution(estDist)
	if err != nil {
		return err
	}

	engine := pricing.NewEngine(newLogger())
	estimate, err := engine.EstimateAnnualCost(estDevices, estRisk, estReputation, dist)
	if err != nil {
		return err
	}

	if estJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(estimate)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIER\tDEVICES\tANNUAL/DEVICE\tTIER TOTAL")
	breakdown := append([]pricing.CoverageBreakdown(nil), estimate.BreakdownByCoverage...)
	sort.Slice(breakdown, func(i, j int) bool {
		return breakdown[i].CoverageTier < breakdown[j].CoverageTier
	})
	for _, b := range breakdown {
		fmt.Fprintf(w, "%s\t%d\t$%.2f\t$%.2f\n", b.CoverageTier, b.DeviceCount, b.PremiumPerDevice, b.TotalPremium)
	}
	w.Flush() //nolint:errcheck

	fmt.Printf("\nSubtotal:        $%.2f\n", estimate.Subtotal)
	fmt.Printf("Volume Discount: %.0f%%\n", estimate.VolumeDiscountRate*100)
	fmt.Printf("Total Annual:    $%.2f\n", estimate.TotalAnnualCost)
	return nil
}

// ── policy-cost ──────────────────────────────────────────────────────────────

var (
	pcMonthly  float64
	pcMonths   int
	pcBulk     int
	pcDiscount bool
	pcJSON     bool
)

var policyCostCmd = &cobra.Command{
	Use:   "policy-cost",
	Short: "Annualize a monthly premium with term and bulk adjustments",
	RunE: func(cmd *cobra.Command, args []string) error {
		model := pricing.NewModel()
		cost := model.CalculateAnnualPolicyCost(pcMonthly, pcMonths, pcDiscount, pcBulk)

		if pcJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(cost)
		}

		fmt.Printf("Base Annual Cost:  $%.2f\n", cost.BaseAnnualCost)
		for name, rate := range cost.Adjustments {
			fmt.Printf("%-18s %.0f%%\n", name+":", rate*100)
		}
		fmt.Printf("Final Annual Cost: $%.2f\n", cost.FinalAnnualCost)
		fmt.Printf("Effective Monthly: $%.2f\n", cost.MonthlyEffectiveRate)
		return nil
	},
}

func init() {
	policyCostCmd.Flags().Float64Var(&pcMonthly, "monthly", 0, "monthly premium in USD (required)")
	policyCostCmd.Flags().IntVar(&pcMonths, "months", 12, "policy term in months")
	policyCostCmd.Flags().IntVar(&pcBulk, "bulk", 0, "bulk device count for bulk discount")
	policyCostCmd.Flags().BoolVar(&pcDiscount, "has-discount", false, "monthly premium already includes a volume discount")
	policyCostCmd.Flags().BoolVar(&pcJSON, "json", false, "output JSON instead of text")
	policyCostCmd.MarkFlagRequired("monthly") //nolint:errcheck
}

// ── tiers ────────────────────────────────────────────────────────────────────

var tiersCmd = &cobra.Command{
	Use:   "tiers",
	Short: "List available coverage tiers",
	RunE: func(cmd *cobra.Command, args []string) error {
		model := pricing.NewModel()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIER\tMULTIPLIER\tMAX CLAIM\tDEDUCTIBLE\tCOVERAGE")
		for _, name := range model.TierNames() {
			tier, err := model.TierDetails(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%.2fx\t$%d\t$%d\t%s\n",
				tier.TierName, tier.BaseMultiplier, tier.MaxAnnualClaim,
				tier.Deductible, strings.Join(tier.CoverageItems, ", "))
		}
		return w.Flush()
	},
}

// ── fingerprint ──────────────────────────────────────────────────────────────

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Print this machine's device fingerprint hash",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := fingerprint.NewService(nil, newLogger())
		hash, err := svc.FingerprintHash()
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the secprem version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("secprem %s\n", version)
	},
}
