package service

import (
	"errors"

	"Routinely/config"
	"Routinely/pkg/messenger"
)

// defaultMessenger 按配置组装投递通道：
// Telegram（或本地 mock）外面套全局限速与重试。
func defaultMessenger() Messenger {
	var inner messenger.Client
	if config.Cfg.MessengerMock {
		inner = messenger.NewMockClient()
	} else {
		client, err := messenger.NewTelegramClient(config.Cfg.TelegramBotToken)
		if err != nil {
			panic("failed to create telegram client: " + err.Error())
		}
		inner = client
	}

	return messenger.NewRateLimitedClient(inner, messenger.RateLimitedOptions{
		RatePerSec:  float64(config.Cfg.DeliveryRatePerSec),
		MaxInFlight: config.Cfg.DeliveryMaxInFlight,
		MaxRetries:  config.Cfg.DeliveryMaxRetries,
		RetryBase:   config.Cfg.DeliveryRetryBase,
		Timeout:     config.Cfg.DeliveryTimeout,
	})
}

func asPermanent(err error, target **messenger.PermanentError) bool {
	return errors.As(err, target)
}
