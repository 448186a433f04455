package storage

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPref возвращается для пустого имени игрока или маппинга
var ErrInvalidPref = errors.New("invalid mapping preference")

// Предпочтения игроков (выбранный маппинг) хранятся по имени игрока:
// UUID сессии меняется при каждом подключении, имя - нет.
// Все реализации удовлетворяют session.PrefStore.

func prefKey(player string) string {
	return strings.ToLower(player)
}

func validatePref(player, mapping string) error {
	if player == "" {
		return fmt.Errorf("%w: пустое имя игрока", ErrInvalidPref)
	}
	if mapping == "" {
		return fmt.Errorf("%w: пустой маппинг для %s", ErrInvalidPref, player)
	}
	return nil
}
