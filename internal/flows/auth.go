package flows

import (
	"context"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/fakto/crmbot/core/logger"
	"github.com/fakto/crmbot/internal/conversation"
	"github.com/fakto/crmbot/internal/crmerr"
	"github.com/fakto/crmbot/internal/supabase"
)

// maskEmail keeps the first character and the domain so log lines stay
// correlatable without carrying the address itself.
func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 1 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

// --- Registration ---

func (f *flows) registerStart(_ context.Context, _ conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	sess.Register = &conversation.RegisterDraft{}
	fx.SendRemoveKeyboard("Registro: ¿Cuál es tu nombre?")
	return conversation.StateRegisterFirstName, nil
}

func (f *flows) registerFirstName(_ context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	if sess.Register == nil {
		sess.Register = &conversation.RegisterDraft{}
	}
	sess.Register.FirstName = strings.TrimSpace(ev.Text)
	fx.Send("¿Y tu apellido?")
	return conversation.StateRegisterLastName, nil
}

func (f *flows) registerLastName(_ context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	sess.Register.LastName = strings.TrimSpace(ev.Text)
	fx.Send("Elige un nombre de usuario:")
	return conversation.StateRegisterUsername, nil
}

func (f *flows) registerUsername(_ context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	sess.Register.Username = strings.TrimSpace(ev.Text)
	fx.Send("Introduce tu email:")
	return conversation.StateRegisterEmail, nil
}

func (f *flows) registerEmail(_ context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	sess.Register.Email = strings.TrimSpace(ev.Text)
	fx.Send("Elige una contraseña:")
	return conversation.StateRegisterPassword, nil
}

// registerComplete creates the auth account and the profile row. A
// duplicate email restarts at the username step so the name fields
// collected so far survive.
func (f *flows) registerComplete(ctx context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	password := ev.Text
	draft := sess.Register
	if draft == nil || draft.Email == "" {
		fx.Send("Error en el flujo de registro. Empieza de nuevo con /start.")
		return f.mainMenu(sess, fx), nil
	}

	user, err := f.auth.AdminCreateUser(ctx, draft.Email, password)
	if err != nil {
		if crmerr.IsDuplicateEmail(err) {
			logger.Warn(ctx, "auth", "register.duplicate_email",
				slog.String("email", maskEmail(draft.Email)))
			fx.Send("Este email ya ha sido registrado. Si eres tú, puedes iniciar sesión o usar /resetpassword.")
		} else {
			logger.Error(ctx, "auth", "register.create_user",
				slog.String("email", maskEmail(draft.Email)),
				slog.String("err", err.Error()))
			fx.Send("Error en el registro. Por favor, inténtalo de nuevo.")
		}
		fx.Send("Elige un nombre de usuario:")
		return conversation.StateRegisterUsername, err
	}

	res, err := f.store.Table("users").Insert(map[string]any{
		"id":           user.ID,
		"auth_user_id": user.ID,
		"username":     draft.Username,
		"first_name":   draft.FirstName,
		"last_name":    draft.LastName,
		"tenant_id":    f.tenant,
	}).Execute(ctx)
	if err == nil && res.Error != nil {
		err = res.Error
	}
	if err != nil {
		logger.Error(ctx, "auth", "register.profile_insert",
			slog.String("err", err.Error()))
		fx.Send("Error en el registro. Por favor, inténtalo de nuevo.")
		fx.Send("Elige un nombre de usuario:")
		return conversation.StateRegisterUsername, err
	}

	sess.Register = nil
	fx.Send("✅ ¡Registro casi completo! Te hemos enviado un email de confirmación. " +
		"Por favor, haz clic en el enlace para activar tu cuenta y luego inicia sesión.")
	return f.mainMenu(sess, fx), nil
}

// --- Login ---

func (f *flows) loginStart(_ context.Context, _ conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	sess.Login = &conversation.LoginDraft{}
	fx.SendRemoveKeyboard("Introduce tu email:")
	return conversation.StateLoginEmail, nil
}

func (f *flows) loginEmail(_ context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	sess.Login = &conversation.LoginDraft{Email: strings.TrimSpace(ev.Text)}
	fx.Send("Introduce tu contraseña:")
	return conversation.StateLoginPassword, nil
}

// loginComplete performs the password grant, stamps last_login and
// loads the tenant the account belongs to. Any failure restarts the
// flow at the email prompt with an empty draft.
func (f *flows) loginComplete(ctx context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	email := ""
	if sess.Login != nil {
		email = sess.Login.Email
	}
	authSess, err := f.auth.SignIn(ctx, email, ev.Text)
	if err != nil {
		logger.Warn(ctx, "auth", "login.failed",
			slog.String("email", maskEmail(email)),
			slog.String("err", err.Error()))
		sess.Login = &conversation.LoginDraft{}
		fx.Send("Error de autenticación. Verifica tus credenciales.")
		fx.Send("Introduce tu email:")
		return conversation.StateLoginEmail, err
	}

	if _, err := f.store.Table("users").
		Update(map[string]any{"last_login": time.Now().Format(time.RFC3339)}).
		Eq("auth_user_id", authSess.User.ID).
		Execute(ctx); err != nil {
		logger.Warn(ctx, "auth", "login.last_login_stamp", slog.String("err", err.Error()))
	}

	res, err := f.store.Table("users").
		Select("tenant_id, username").
		Eq("auth_user_id", authSess.User.ID).
		Single().
		Execute(ctx)
	if err == nil && res.Error != nil {
		err = res.Error
	}
	if err != nil || len(res.Rows) == 0 {
		if err == nil {
			err = crmerr.NewValidation("perfil de usuario no encontrado")
		}
		logger.Error(ctx, "auth", "login.profile_lookup", slog.String("err", err.Error()))
		sess.Login = &conversation.LoginDraft{}
		fx.Send("Error de autenticación. Verifica tus credenciales.")
		fx.Send("Introduce tu email:")
		return conversation.StateLoginEmail, err
	}

	profile := res.Rows[0]
	sess.TenantID = profile.String("tenant_id")
	sess.Authenticated = true
	sess.Login = nil

	username := profile.String("username")
	if username == "" {
		username = email
	}
	fx.Send(fmt.Sprintf("✅ ¡Sesión iniciada correctamente para %s!", username))
	logger.Info(ctx, "auth", "login.ok", slog.String("tenant_id", sess.TenantID))
	return f.mainMenu(sess, fx), nil
}

// --- Password recovery ---

func (f *flows) resetStart(_ context.Context, _ conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	sess.Reset = &conversation.ResetDraft{}
	fx.SendRemoveKeyboard("Por favor, introduce el email de la cuenta que quieres recuperar.")
	return conversation.StateResetEmail, nil
}

func (f *flows) resetEmail(ctx context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	email := strings.TrimSpace(ev.Text)
	sess.Reset = &conversation.ResetDraft{Email: email}
	if err := f.auth.SendRecovery(ctx, email); err != nil {
		logger.Error(ctx, "auth", "reset.send_recovery",
			slog.String("email", maskEmail(email)),
			slog.String("err", err.Error()))
		fx.Send("Hubo un error al procesar tu solicitud. Por favor, inténtalo de nuevo.")
		return conversation.StateEnd, err
	}
	fx.Send("Te hemos enviado un email con un enlace de recuperación. " +
		"Por favor, copia y pega la URL completa aquí.")
	return conversation.StateResetToken, nil
}

// resetToken extracts the tokens from the pasted recovery link. A link
// that does not parse keeps the state so the user can paste again.
func (f *flows) resetToken(_ context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	tokens, err := supabase.ParseRecoveryURL(strings.TrimSpace(ev.Text))
	if err != nil {
		fx.Send("La URL que pegaste no parece válida. Por favor, inténtalo de nuevo o cancela con /cancel.")
		return conversation.StateResetToken, nil
	}
	if sess.Reset == nil {
		sess.Reset = &conversation.ResetDraft{}
	}
	sess.Reset.AccessToken = tokens.AccessToken
	sess.Reset.RefreshToken = tokens.RefreshToken
	fx.Send("Gracias. Ahora, por favor, introduce tu nueva contraseña.")
	return conversation.StateResetNewPassword, nil
}

// resetComplete validates the token and sets the new password. The flow
// is terminal either way: the recovery tokens never survive it.
func (f *flows) resetComplete(ctx context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	defer func() { sess.ResetFlows() }()

	if sess.Reset == nil || sess.Reset.AccessToken == "" {
		fx.Send("Ha ocurrido un error, no se encontró el token de sesión. Inicia el proceso de nuevo con /resetpassword.")
		return conversation.StateEnd, nil
	}
	token := sess.Reset.AccessToken

	if _, err := f.auth.VerifyToken(ctx, token); err != nil {
		logger.Warn(ctx, "auth", "reset.verify_token", slog.String("err", err.Error()))
		fx.Send("Hubo un error al actualizar tu contraseña. Por favor, intenta el proceso de nuevo con /resetpassword.")
		return conversation.StateEnd, err
	}
	if err := f.auth.UpdatePassword(ctx, token, ev.Text); err != nil {
		logger.Error(ctx, "auth", "reset.update_password", slog.String("err", err.Error()))
		fx.Send("Hubo un error al actualizar tu contraseña. Por favor, intenta el proceso de nuevo con /resetpassword.")
		return conversation.StateEnd, err
	}

	fx.Send("¡Tu contraseña ha sido actualizada con éxito! Ya puedes iniciar sesión.")
	return conversation.StateEnd, nil
}
