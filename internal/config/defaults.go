package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:          "info",
			LogFormat:         "text",
			MaxConcurrentJobs: 5,
			JobTimeoutSeconds: 180,
			WorkDir:           "~/.xeterbot/work",
		},
		Channels: ChannelsConfig{
			Discord: DiscordConfig{
				Enabled: false,
				Token:   "${DISCORD_TOKEN}",
			},
			Telegram: TelegramConfig{
				Enabled: false,
				Token:   "${TELEGRAM_TOKEN}",
			},
			CLI: CLIConfig{
				Enabled: true,
			},
		},
		Engine: EngineConfig{
			Command:        defaultEngineCommand(),
			TimeoutSeconds: 60,
			MaxOutputBytes: 16 << 10,
		},
		Limits: LimitsConfig{
			MaxSourceBytes:        100_000,
			TypingIntervalSeconds: 8,
			JobBurst:              10,
			JobsPerMinute:         30,
			DownloadTimeoutSecs:   30,
		},
		Output: OutputConfig{
			Banner:         "--// Obfuscated By Xeter Hub [ https://discord.com/invite/hcJ8PHtkfy ]",
			FilenamePrefix: "Xeter_",
			FilenameExt:    ".txt",
			SourceSuffix:   ".lua",
			HelpFooter:     "Xeter Hub - https://discord.com/invite/hcJ8PHtkfy",
		},
		Messages: MessagesConfig{
			SizeExceeded: "Bot is in testing, please use files under {limit}!",
			Apology:      "Đã xảy ra lỗi. Vui lòng thử lại sau.",
		},
		History: HistoryConfig{
			Enabled:       true,
			DBPath:        "~/.xeterbot/history.db",
			RetentionDays: 90,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Listen:   "127.0.0.1:9464",
			Endpoint: "/metrics",
		},
	}
}

func defaultEngineCommand() []string {
	return []string{"lua", "./cli.lua", "--preset", "{preset}", "--out", "{output}", "{input}"}
}
