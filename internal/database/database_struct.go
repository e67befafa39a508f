package database

import (
	"sync"

	"gorm.io/gorm"

	"mathchat/internal/models"
)

// Database — единственная точка записи в долговременный журнал.
// Все пути входа (сокет, REST, релей ассистента) проходят через неё.
type Database struct {
	db *gorm.DB

	// Назначение seq сериализуется по-скоупно: счётчик внутри одного
	// журнала продвигается строго по одному писателю за раз.
	seqMu   sync.Mutex
	seqLock map[models.Scope]*sync.Mutex

	// Выдача кодов приглашения: check-and-insert должен быть атомарен
	// относительно параллельного создания комнат.
	codeMu sync.Mutex
}

// scopeLock возвращает мьютекс журнала, создавая его при первом обращении.
func (d *Database) scopeLock(scope models.Scope) *sync.Mutex {
	d.seqMu.Lock()
	defer d.seqMu.Unlock()

	if d.seqLock == nil {
		d.seqLock = make(map[models.Scope]*sync.Mutex)
	}
	mu, ok := d.seqLock[scope]
	if !ok {
		mu = &sync.Mutex{}
		d.seqLock[scope] = mu
	}
	return mu
}
