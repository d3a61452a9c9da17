package errors

// ErrorCode represents a specific error code in the system.
type ErrorCode string

const (
	// GeneralInternalServerError represents a generic internal server error.
	GeneralInternalServerError ErrorCode = "general_internal_server_error"
	// GeneralBadRequestError represents a generic bad request error.
	GeneralBadRequestError ErrorCode = "general_bad_request_error"
	// GeneralNotFoundError represents a generic not found error.
	GeneralNotFoundError ErrorCode = "general_not_found_error"
	// GeneralRepositoryError represents a generic repository error.
	GeneralRepositoryError ErrorCode = "general_repository_error"

	// OrderValidationError represents an order rejected before any state mutation.
	OrderValidationError ErrorCode = "order_validation_error"
	// InsufficientBalanceError represents a failed balance reservation.
	InsufficientBalanceError ErrorCode = "insufficient_balance"
	// InvalidAmountError represents a non-positive amount passed to a ledger operation.
	InvalidAmountError ErrorCode = "invalid_amount"
	// SettlementFailedError represents a trade whose fund transfer could not be applied.
	SettlementFailedError ErrorCode = "settlement_failed"
	// ShardUnavailableError represents a shard that is not accepting requests.
	ShardUnavailableError ErrorCode = "shard_unavailable"
	// MarketNotFoundError represents an order routed to an unknown market.
	MarketNotFoundError ErrorCode = "market_not_found"
	// MarketInactiveError represents an order routed to a non-active market.
	MarketInactiveError ErrorCode = "market_inactive"

	// RedisConfigError represents an error when the Redis configuration is invalid or nil.
	RedisConfigError ErrorCode = "redis_config_error"
	// RedisConnectionError represents an error when connecting to Redis.
	RedisConnectionError ErrorCode = "redis_connection_error"
	// RedisDisconnectionError represents an error when disconnecting from Redis.
	RedisDisconnectionError ErrorCode = "redis_disconnection_error"
	// RedisPingError represents an error when pinging Redis.
	RedisPingError ErrorCode = "redis_pinging_error"
	// RedisGetError represents an error when getting a value from Redis.
	RedisGetError ErrorCode = "redis_get_error"
	// RedisSetError represents an error when setting a value in Redis.
	RedisSetError ErrorCode = "redis_set_error"
	// RedisDelError represents an error when deleting a value from Redis.
	RedisDelError ErrorCode = "redis_del_error"
	// RedisSetNXError represents an error when setting a value in Redis with SetNX.
	RedisSetNXError ErrorCode = "redis_setnx_error"
	// RedisHGetError represents an error when getting a field from a hash in Redis.
	RedisHGetError ErrorCode = "redis_hget_error"
	// RedisHGetAllError represents an error when reading a whole hash from Redis.
	RedisHGetAllError ErrorCode = "redis_hgetall_error"
	// RedisHSetError represents an error when setting fields in a hash in Redis.
	RedisHSetError ErrorCode = "redis_hset_error"
	// RedisHDelError represents an error when deleting fields from a hash in Redis.
	RedisHDelError ErrorCode = "redis_hdel_error"
	// RedisPublishError represents an error when publishing messages to channels in Redis.
	RedisPublishError ErrorCode = "redis_publish_error"
)
