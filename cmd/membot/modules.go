package main

// Compiled-in modules. Each registers itself with core in init.
import (
	_ "github.com/flemzord/membot/internal/cron"
	_ "github.com/flemzord/membot/internal/gateway"
	_ "github.com/flemzord/membot/modules/memory/ephemeral"
	_ "github.com/flemzord/membot/modules/memory/sqlite"
	_ "github.com/flemzord/membot/modules/provider/openai_compatible"
)
