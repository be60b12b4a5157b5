package queue

// TypeAudioTick is the scheduler's processing tick. Ticks carry no
// payload: all state the handler needs lives in Redis and Postgres, so a
// tick delivered twice or late is harmless.
const TypeAudioTick = "audio:tick"
