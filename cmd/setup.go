package cmd

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard for Assetdistributor",
	Long:  `Configure vendor credentials, the cache backend and the owner, writing .env and config.yaml.`,
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

type setupAnswers struct {
	env    map[string]string
	config map[string]any
}

func runSetup(cmd *cobra.Command, args []string) error {
	fmt.Println(titleStyle.Render("📼 Assetdistributor Setup"))

	answers := &setupAnswers{env: make(map[string]string), config: make(map[string]any)}

	steps := []struct {
		name string
		fn   func(*setupAnswers) error
	}{
		{"Choosing owner", configureOwner},
		{"Choosing cache", configureCache},
		{"Configuring vendors", configureVendors},
		{"Configuring encryption", configureEncryption},
		{"Configuring Google Cloud", configureGCP},
	}

	for _, step := range steps {
		if err := step.fn(answers); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}

	if err := writeConfigFile(answers.config); err != nil {
		return err
	}
	if err := writeEnvFile(answers.env); err != nil {
		return err
	}

	printNextSteps()
	return nil
}

func configureOwner(a *setupAnswers) error {
	name := os.Getenv("USER")
	if err := huh.NewInput().
		Title("Owner").
		Description("Whose accounts and uploads this installation manages").
		Value(&name).
		Validate(required("Owner")).
		Run(); err != nil {
		return err
	}
	a.config["owner"] = strings.TrimSpace(name)
	return nil
}

func configureCache(a *setupAnswers) error {
	var backend string
	if err := huh.NewSelect[string]().
		Title("Cache backend").
		Description("Where credentials, remote ids and pending operations are kept").
		Options(
			huh.NewOption("Local files", "file"),
			huh.NewOption("SQLite database", "sqlite"),
			huh.NewOption("Redis", "redis"),
			huh.NewOption("Google Cloud Storage bucket", "gcs"),
			huh.NewOption("Amazon S3 bucket", "s3"),
		).
		Value(&backend).
		Run(); err != nil {
		return err
	}

	cache := map[string]any{"backend": backend}
	switch backend {
	case "file":
		dir := "./.cache/assetdistributor"
		if err := huh.NewInput().Title("Cache directory").Value(&dir).Run(); err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		fmt.Println(successStyle.Render("✓ Created " + dir))
		cache["dir"] = dir

	case "sqlite":
		dsn := "./assetdistributor.db"
		if err := huh.NewInput().Title("Database file").Value(&dsn).Run(); err != nil {
			return err
		}
		cache["dsn"] = dsn

	case "redis":
		addr, password := "localhost:6379", ""
		if err := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Redis address").Value(&addr),
			huh.NewInput().Title("Redis password").EchoMode(huh.EchoModePassword).Value(&password),
		)).Run(); err != nil {
			return err
		}
		cache["redis"] = map[string]any{"addr": addr}
		if password != "" {
			a.env["REDIS_PASSWORD"] = password
		}

	case "gcs", "s3":
		var bucket, region string
		fields := []huh.Field{
			huh.NewInput().Title("Bucket").Value(&bucket).Validate(required("Bucket")),
		}
		if backend == "s3" {
			region = "us-east-1"
			fields = append(fields, huh.NewInput().Title("Region").Value(&region))
		}
		if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
			return err
		}
		section := map[string]any{"bucket": strings.TrimSpace(bucket)}
		if region != "" {
			section["region"] = region
		}
		cache[backend] = section
	}

	a.config["cache"] = cache
	return nil
}

var vendorSetups = []struct {
	key        string
	name       string
	idEnv      string
	secretEnv  string
	consoleURL string
}{
	{"youtube", "YouTube", "YOUTUBE_CLIENT_ID", "YOUTUBE_CLIENT_SECRET", "https://console.cloud.google.com/apis/credentials"},
	{"vimeo", "Vimeo", "VIMEO_CLIENT_ID", "VIMEO_CLIENT_SECRET", "https://developer.vimeo.com/apps"},
	{"dailymotion", "Dailymotion", "DAILYMOTION_API_KEY", "DAILYMOTION_API_SECRET", "https://www.dailymotion.com/partner/api-keys"},
}

func configureVendors(a *setupAnswers) error {
	vendors := map[string]any{}

	for _, v := range vendorSetups {
		var enable bool
		if err := huh.NewConfirm().
			Title("Publish to " + v.name + "?").
			Value(&enable).
			Run(); err != nil {
			return err
		}
		if !enable {
			vendors[v.key] = map[string]any{"disabled": true}
			continue
		}

		fmt.Println(infoStyle.Render(fmt.Sprintf(`
Create an OAuth application at %s
and add this redirect URL: http://localhost:8085/callback/%s
`, v.consoleURL, v.key)))

		var clientID, clientSecret string
		if err := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title(v.name+" client ID").Value(&clientID).Validate(required("Client ID")),
			huh.NewInput().Title(v.name+" client secret").EchoMode(huh.EchoModePassword).Value(&clientSecret).Validate(required("Client secret")),
		)).Run(); err != nil {
			return err
		}
		a.env[v.idEnv] = strings.TrimSpace(clientID)
		a.env[v.secretEnv] = strings.TrimSpace(clientSecret)
	}

	if len(vendors) > 0 {
		a.config["vendors"] = vendors
	}
	return nil
}

func configureEncryption(a *setupAnswers) error {
	var encrypt bool
	if err := huh.NewConfirm().
		Title("Encrypt stored credentials?").
		Description("Generates an AES-256 key into .env; keep it safe, losing it means reconnecting every vendor").
		Affirmative("Yes").
		Negative("No").
		Value(&encrypt).
		Run(); err != nil {
		return err
	}
	if !encrypt {
		return nil
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	a.env["ASSETDIST_ENCRYPTION_KEY"] = base64.StdEncoding.EncodeToString(key)
	fmt.Println(successStyle.Render("✓ Generated encryption key"))
	return nil
}

func configureGCP(a *setupAnswers) error {
	if !commandExists("gcloud") {
		return nil
	}

	project := getActiveProject()
	if project == "" {
		return nil
	}

	var useProject bool
	if err := huh.NewConfirm().
		Title("Use Google Cloud project " + project + "?").
		Description("Lets .env values reference Secret Manager secrets as sm://projects/...").
		Value(&useProject).
		Run(); err != nil {
		return err
	}
	if !useProject {
		return nil
	}

	a.env["GOOGLE_CLOUD_PROJECT"] = project
	if err := runWithSpinner("Enabling Secret Manager API", func() error {
		return runSetupCmd("gcloud", "services", "enable", "secretmanager.googleapis.com", "--project", project)
	}); err != nil {
		fmt.Println(warnStyle.Render(fmt.Sprintf("API enablement failed: %v", err)))
	}
	return nil
}

func getActiveProject() string {
	out, err := exec.Command("gcloud", "config", "get-value", "project").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func writeConfigFile(cfg map[string]any) error {
	if !confirmOverwrite("config.yaml") {
		fmt.Println(infoStyle.Render("Kept existing config.yaml"))
		return nil
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config.yaml: %w", err)
	}
	if err := os.WriteFile("config.yaml", data, 0644); err != nil {
		return err
	}
	fmt.Println(successStyle.Render("✓ Created config.yaml"))
	return nil
}

func writeEnvFile(env map[string]string) error {
	if !confirmOverwrite(".env") {
		fmt.Println(infoStyle.Render("Kept existing .env"))
		return nil
	}

	f, err := os.OpenFile(".env", os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	order := []string{
		"GOOGLE_CLOUD_PROJECT",
		"YOUTUBE_CLIENT_ID",
		"YOUTUBE_CLIENT_SECRET",
		"VIMEO_CLIENT_ID",
		"VIMEO_CLIENT_SECRET",
		"DAILYMOTION_API_KEY",
		"DAILYMOTION_API_SECRET",
		"ASSETDIST_ENCRYPTION_KEY",
		"REDIS_PASSWORD",
	}

	for _, key := range order {
		if val, ok := env[key]; ok && val != "" {
			_, _ = fmt.Fprintf(f, "%s=%s\n", key, val)
		}
	}

	fmt.Println(successStyle.Render("✓ Created .env file"))
	return nil
}

func confirmOverwrite(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return true
	}
	var overwrite bool
	if err := huh.NewConfirm().
		Title("Found existing " + path).
		Description("Overwrite?").
		Value(&overwrite).
		Run(); err != nil {
		return false
	}
	return overwrite
}

func printNextSteps() {
	fmt.Println()
	fmt.Println(titleStyle.Render("Next steps:"))
	fmt.Println("  1. Connect a vendor: assetdistributor auth youtube")
	fmt.Println("  2. Publish a file:   assetdistributor publish upload video.mp4 --vendor youtube,vimeo")
	fmt.Println("  3. Check status:     assetdistributor auth status")
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func commandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func runSetupCmd(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %s", err, stderr.String())
	}
	return nil
}
