package redisub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReplyVariants(t *testing.T) {
	assert.True(t, StringReply("x").IsString())
	assert.Equal(t, "x", StringReply("x").AsString())

	assert.True(t, ErrorReply("boom").IsError())
	assert.Equal(t, "boom", ErrorReply("boom").AsString())

	assert.True(t, IntegerReply(3).IsInteger())
	assert.Equal(t, int64(3), IntegerReply(3).AsInteger())

	arr := ArrayReply(StringReply("a"), IntegerReply(1))
	assert.True(t, arr.IsArray())
	assert.Len(t, arr.AsArray(), 2)

	assert.True(t, NilReply().IsNil())
	assert.False(t, NilReply().IsString())
}

func TestReplyString(t *testing.T) {
	assert.Equal(t, `string("pong")`, StringReply("pong").String())
	assert.Equal(t, `error("network failure")`, networkFailureReply().String())
	assert.Equal(t, "integer(5)", IntegerReply(5).String())
	assert.Equal(t, "nil", NilReply().String())
	assert.Equal(t,
		`array(string("pong"), string("hi"))`,
		ArrayReply(StringReply("pong"), StringReply("hi")).String())
}
