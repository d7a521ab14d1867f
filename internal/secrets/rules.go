package secrets

func high(id, desc, pattern string, keywords ...string) Rule {
	return Rule{ID: id, Description: desc, Pattern: pattern, Keywords: keywords, Severity: "high"}
}

func medium(id, desc, pattern string, keywords ...string) Rule {
	return Rule{ID: id, Description: desc, Pattern: pattern, Keywords: keywords, Severity: "medium"}
}

// DefaultRules returns the built-in detection rules. Vendor prefixes
// identify themselves and need no keywords.
func DefaultRules() []Rule {
	return []Rule{
		// Model providers
		high("anthropic-api-key", "Anthropic API Key",
			`sk-ant-[A-Za-z0-9_\-]{20,}`),
		high("openai-project-key", "OpenAI Project API Key",
			`sk-proj-[A-Za-z0-9_\-]{20,}`),
		high("openai-api-key", "OpenAI API Key",
			`sk-[A-Za-z0-9]{20,}`),
		high("huggingface-token", "Hugging Face Access Token",
			`hf_[A-Za-z0-9]{34,}`),

		// GitHub
		high("github-token", "GitHub Personal Access Token",
			`ghp_[A-Za-z0-9]{36}`),
		high("github-oauth", "GitHub OAuth Access Token",
			`gho_[A-Za-z0-9]{36}`),
		high("github-app", "GitHub App Token",
			`(?:ghu|ghs)_[A-Za-z0-9]{36}`),
		high("github-fine-grained", "GitHub Fine-grained Personal Access Token",
			`github_pat_[A-Za-z0-9_]{22,}`),
		high("gitlab-token", "GitLab Personal Access Token",
			`glpat-[A-Za-z0-9_\-]{20,}`),
		high("slack-token", "Slack Token",
			`xox[abprs]-[A-Za-z0-9\-]{10,}`),

		// AWS
		high("aws-access-key-id", "AWS Access Key ID",
			`(?:A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}`),
		high("aws-secret-access-key", "AWS Secret Access Key",
			`(?i)(?:aws_secret_access_key|aws_secret_key|secret_access_key)\s*[:=]\s*['"]?(?P<secret>[A-Za-z0-9/+=]{40})`),

		// Google
		high("google-api-key", "Google API Key",
			`AIza[A-Za-z0-9_\-]{35}`),
		high("google-oauth-token", "Google OAuth Access Token",
			`ya29\.[A-Za-z0-9_\-]+`),

		// Payments
		high("stripe-key", "Stripe API Key",
			`(?:sk|pk|rk)_(?:live|test)_[A-Za-z0-9]{24,}`),
		high("stripe-webhook-secret", "Stripe Webhook Secret",
			`whsec_[A-Za-z0-9]{32,}`),
		high("square-token", "Square Access Token or OAuth Secret",
			`sq0(?:atp-[A-Za-z0-9_\-]{22}|csp-[A-Za-z0-9_\-]{43})`),
		high("sendgrid-api-key", "SendGrid API Key",
			`SG\.[A-Za-z0-9_\-]{22,}\.[A-Za-z0-9_\-]{43,}`),
		high("npm-token", "npm Access Token",
			`npm_[A-Za-z0-9]{36}`),

		// SK prefix is too common on its own
		high("twilio-api-key", "Twilio API Key",
			`SK[A-Za-z0-9]{32}`, "twilio"),
		high("heroku-api-key", "Heroku API Key",
			`(?i)heroku[_-]?api[_-]?key\s*[:=]\s*(?P<secret>[A-Fa-f0-9]{8}-[A-Fa-f0-9]{4}-[A-Fa-f0-9]{4}-[A-Fa-f0-9]{4}-[A-Fa-f0-9]{12})`, "heroku"),

		// Bearer tokens
		medium("bearer-token", "Bearer Token",
			`(?i)\bbearer\s+(?P<secret>[A-Za-z0-9_\-.~+/=]{20,})`),

		// key=value credentials
		high("generic-api-key", "Generic API Key or Token Assignment",
			`(?i)(?:api[_-]?key|apikey|secret[_-]?key|auth[_-]?token|access[_-]?token|private[_-]?key|client[_-]?secret)\s*[:=]\s*['"]?(?P<secret>[A-Za-z0-9_\-.]{16,})`),
		high("password-assignment", "Password Assignment",
			`(?i)(?:password|passwd|pwd)\s*[:=]\s*['"]?(?P<secret>[^\s'"]{8,})`),
		high("encryption-key", "Hex Encryption Key Assignment",
			`(?i)(?:encryption[_-]?key|aes[_-]?key)\s*[:=]\s*['"]?(?P<secret>[A-Fa-f0-9]{32,})`),
		high("env-credential", "Environment Variable with Credential",
			`(?i)\b(?:DB_PASSWORD|DATABASE_PASSWORD|MYSQL_PASSWORD|POSTGRES_PASSWORD|REDIS_PASSWORD|MONGO_PASSWORD|API_SECRET|APP_SECRET|REFRESH_TOKEN)\s*[:=]\s*['"]?(?P<secret>[^\s'"]{8,})`),

		// Database URLs: only the password is redacted
		high("database-url", "Database Connection URL with credentials",
			`(?i)\b(?:postgres|postgresql|mysql|mongodb(?:\+srv)?|redis|rediss|amqp)://[^\s:@/]+:(?P<secret>[^\s@/]+)@`),
		medium("jwt", "JSON Web Token",
			`eyJ[A-Za-z0-9_\-]+\.eyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`),

		// Whole PEM block when the footer is present, else the header alone
		high("private-key", "Private Key",
			`-----BEGIN [A-Z ]*PRIVATE KEY(?: BLOCK)?-----(?:[\s\S]*?-----END [A-Z ]*PRIVATE KEY(?: BLOCK)?-----)?`),
	}
}
