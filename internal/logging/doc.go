// Package logging provides structured logging for planify.
//
// The package wraps Zap with:
//   - a Trace level (-2, below Debug) for raw agent payloads
//   - context field injection (trace_id, span_id, session.id, round)
//   - redaction of sensitive field names and credential-shaped values
//   - optional sampling of repetitive lines below Warn
//
// Logs go to stderr by default so that stdout carries only plan output:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithSessionID(ctx, sess.ID)
//	ctx = logging.WithRound(ctx, 2)
//	logger.Info(ctx, "critique received", zap.Int("issues", 4))
//
// Secret values from config are logged with Secret, which records only
// whether the value is set and its length:
//
//	logger.Debug(ctx, "backend ready", logging.Secret("api_key", cfg.APIKey))
//
// Tests use NewTestLogger, which records entries in memory:
//
//	tl := logging.NewTestLogger()
//	run(tl.Logger)
//	tl.AssertLogged(t, zapcore.WarnLevel, "repeated issue")
//	tl.AssertNoSecrets(t)
package logging
