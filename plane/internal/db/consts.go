package db

import "time"

const cacheJanitorInterval = 5 * time.Minute
