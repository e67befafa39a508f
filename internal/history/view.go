// Package history хранит клиентское представление журнала одного scope
// и сводит его с долговременным хранилищем. Push-читатель применяет каждое
// входящее сообщение через Apply; poll-читатель периодически добирает хвост
// через Merge по курсору LastSeq. Оба сходятся к порядку хранилища: порядок
// внутри View всегда совпадает с порядком seq.
package history

import (
	"sort"
	"sync"

	"mathchat/internal/models"
)

// View — кэшированное представление журнала для одного читателя.
// Состояние всегда привязано к текущему scope; смена scope обязана пройти
// через SwitchScope, чтобы сообщения старой комнаты не протекли в новую.
type View struct {
	mu    sync.Mutex
	scope models.Scope
	msgs  []models.Message // отсортированы по seq, без дубликатов
}

func NewView(scope models.Scope) *View {
	return &View{scope: scope}
}

// Scope возвращает журнал, к которому привязано представление.
func (v *View) Scope() models.Scope {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.scope
}

// LastSeq — курсор читателя: максимальный увиденный seq (0 — пусто).
func (v *View) LastSeq() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSeqLocked()
}

func (v *View) lastSeqLocked() uint64 {
	if len(v.msgs) == 0 {
		return 0
	}
	return v.msgs[len(v.msgs)-1].Seq
}

// Apply вносит одно сообщение, пришедшее push-путём. Сообщения чужого
// scope и уже увиденные seq отбрасываются; возвращается, было ли
// сообщение новым.
func (v *View) Apply(msg models.Message) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if msg.Scope() != v.scope {
		return false
	}

	i := sort.Search(len(v.msgs), func(i int) bool { return v.msgs[i].Seq >= msg.Seq })
	if i < len(v.msgs) && v.msgs[i].Seq == msg.Seq {
		return false
	}

	v.msgs = append(v.msgs, models.Message{})
	copy(v.msgs[i+1:], v.msgs[i:])
	v.msgs[i] = msg
	return true
}

// Merge применяет пакет сообщений из ReadSince; возвращает число новых.
func (v *View) Merge(msgs []models.Message) int {
	applied := 0
	for _, m := range msgs {
		if v.Apply(m) {
			applied++
		}
	}
	return applied
}

// Reload заменяет представление полным снимком хранилища, отбрасывая любое
// локальное состояние — в том числе оптимистичные записи, не
// подтверждённые хранилищем. Это обязательное условие стратегии полной
// перезагрузки вместо инкрементального чтения.
func (v *View) Reload(msgs []models.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.msgs = v.msgs[:0]
	for _, m := range msgs {
		if m.Scope() == v.scope {
			v.msgs = append(v.msgs, m)
		}
	}
	sort.Slice(v.msgs, func(i, j int) bool { return v.msgs[i].Seq < v.msgs[j].Seq })
}

// NeedsSync сообщает о пропусках внутри наблюдаемого отрезка: увиденных
// сообщений меньше, чем его протяжённость в seq, значит часть истории
// прошла мимо читателя и нужен добор. Читатель, добранный с курсора
// after_seq > 0, пропусков до своего первого сообщения не имеет.
func (v *View) NeedsSync() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.msgs) == 0 {
		return false
	}
	span := v.msgs[len(v.msgs)-1].Seq - v.msgs[0].Seq + 1
	return uint64(len(v.msgs)) != span
}

// SwitchScope сбрасывает всё состояние и привязывает представление к
// новому журналу.
func (v *View) SwitchScope(scope models.Scope) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scope = scope
	v.msgs = nil
}

// Messages возвращает копию текущего представления в порядке seq.
func (v *View) Messages() []models.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.Message, len(v.msgs))
	copy(out, v.msgs)
	return out
}
