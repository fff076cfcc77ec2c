package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port     string
		LogLevel string
	}
	Recording struct {
		Dir              string
		ClientURL        string
		MaxDuration      time.Duration
		CleanupAfterStop bool
		CleanupDelay     time.Duration
		StopGrace        time.Duration
		PageReadyTimeout time.Duration
		JoinTimeout      time.Duration
	}
	Video struct {
		Width  int
		Height int
		FPS    int
	}
	Audio struct {
		Codec   string
		Bitrate string
	}
	Merge struct {
		URL     string
		Timeout time.Duration
	}
}

func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("recording.dir", "/tmp/mitsi-recordings")
	v.SetDefault("recording.client_url", "http://localhost:5173")
	v.SetDefault("recording.max_duration_ms", 21600000)
	v.SetDefault("recording.cleanup_after_stop", false)
	v.SetDefault("recording.cleanup_delay_ms", 5000)
	v.SetDefault("recording.stop_grace_ms", 5000)
	v.SetDefault("recording.page_ready_timeout_ms", 30000)
	v.SetDefault("recording.join_timeout_ms", 15000)

	v.SetDefault("video.width", 1280)
	v.SetDefault("video.height", 720)
	v.SetDefault("video.fps", 30)

	v.SetDefault("audio.codec", "libopus")
	v.SetDefault("audio.bitrate", "128k")

	v.SetDefault("merge.url", "")
	v.SetDefault("merge.timeout_ms", 300000)

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")

	v.BindEnv("recording.dir", "TEMP_RECORDING_DIR")
	v.BindEnv("recording.client_url", "LOCAL_CLIENT_URL")
	v.BindEnv("recording.max_duration_ms", "MAX_SESSION_DURATION")
	v.BindEnv("recording.cleanup_after_stop", "CLEANUP_AFTER_STOP")
	v.BindEnv("recording.cleanup_delay_ms", "CLEANUP_DELAY_MS")
	v.BindEnv("recording.stop_grace_ms", "STOP_GRACE_MS")
	v.BindEnv("recording.page_ready_timeout_ms", "PAGE_READY_TIMEOUT_MS")
	v.BindEnv("recording.join_timeout_ms", "JOIN_TIMEOUT_MS")

	v.BindEnv("video.width", "VIDEO_WIDTH")
	v.BindEnv("video.height", "VIDEO_HEIGHT")
	v.BindEnv("video.fps", "VIDEO_FPS")

	v.BindEnv("audio.codec", "AUDIO_CODEC")
	v.BindEnv("audio.bitrate", "AUDIO_BITRATE")

	v.BindEnv("merge.url", "MERGING_SERVICE_URL")
	v.BindEnv("merge.timeout_ms", "MERGING_SERVICE_TIMEOUT_MS")

	var c Config
	c.Server.Port = v.GetString("server.port")
	c.Server.LogLevel = v.GetString("server.log_level")

	c.Recording.Dir = v.GetString("recording.dir")
	c.Recording.ClientURL = v.GetString("recording.client_url")
	c.Recording.MaxDuration = msDuration(v.GetInt("recording.max_duration_ms"))
	c.Recording.CleanupAfterStop = v.GetBool("recording.cleanup_after_stop")
	c.Recording.CleanupDelay = msDuration(v.GetInt("recording.cleanup_delay_ms"))
	c.Recording.StopGrace = msDuration(v.GetInt("recording.stop_grace_ms"))
	c.Recording.PageReadyTimeout = msDuration(v.GetInt("recording.page_ready_timeout_ms"))
	c.Recording.JoinTimeout = msDuration(v.GetInt("recording.join_timeout_ms"))

	c.Video.Width = v.GetInt("video.width")
	c.Video.Height = v.GetInt("video.height")
	c.Video.FPS = v.GetInt("video.fps")

	c.Audio.Codec = v.GetString("audio.codec")
	c.Audio.Bitrate = v.GetString("audio.bitrate")

	c.Merge.URL = v.GetString("merge.url")
	c.Merge.Timeout = msDuration(v.GetInt("merge.timeout_ms"))

	return c
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
