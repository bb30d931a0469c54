package service

import (
	"context"
	"fmt"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
	"github.com/ammar0101/campus-security-system/internal/platform/channel"
	"github.com/ammar0101/campus-security-system/internal/platform/dispatch"
	"github.com/ammar0101/campus-security-system/internal/platform/realtime"
	"go.uber.org/zap"
)

// Effects regroupe les collaborateurs des effets de bord (push, e-mail,
// temps réel). Tout passe par le dispatcher : la réponse n'attend jamais
// leur exécution et un échec n'annule pas la mutation déjà enregistrée.
type Effects struct {
	Gateway    channel.Gateway
	Notifier   realtime.Notifier
	Dispatcher dispatch.Submitter
	Logger     *zap.Logger
}

func (e *Effects) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// submit planifie une tâche ; le dispatcher journalise les échecs avec son nom,
// qui porte l'identifiant de l'entité.
func (e *Effects) submit(name, entityID string, run func(ctx context.Context) error) {
	if !e.Dispatcher.Submit(dispatch.Task{Name: name + ":" + entityID, Run: run}) {
		e.logger().Warn("side effect not scheduled", zap.String("task", name), zap.String("entity_id", entityID))
	}
}

func (e *Effects) publish(entityID, room, event string, payload interface{}) {
	e.submit("publish "+event, entityID, func(ctx context.Context) error {
		return e.Notifier.Publish(ctx, room, event, payload)
	})
}

// publishEach diffuse un même événement dans plusieurs salles en une seule
// tâche : la diffusion occupe une place dans la file quel que soit le nombre de salles.
// Chaque salle est tentée ; les échecs sont journalisés individuellement.
func (e *Effects) publishEach(entityID string, rooms []string, event string, payload interface{}) {
	if len(rooms) == 0 {
		return
	}
	rooms = append([]string(nil), rooms...)
	e.submit("publish "+event, entityID, func(ctx context.Context) error {
		failed := 0
		for _, room := range rooms {
			if err := e.Notifier.Publish(ctx, room, event, payload); err != nil {
				failed++
				e.logger().Warn("realtime publish failed",
					zap.String("entity_id", entityID),
					zap.String("room", room),
					zap.String("event", event),
					zap.Error(err))
			}
		}
		if failed > 0 {
			return fmt.Errorf("%s: %d of %d rooms failed", event, failed, len(rooms))
		}
		return nil
	})
}

func (e *Effects) email(name, entityID string, to []string, mail channel.Email) {
	if len(to) == 0 {
		return
	}
	e.submit(name, entityID, func(ctx context.Context) error {
		return e.Gateway.SendEmail(ctx, to, mail)
	})
}

func deviceTokens(users []entity.User) []string {
	var out []string
	for _, u := range users {
		out = append(out, u.DeviceTokens...)
	}
	return out
}
